package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Signer,RevocationLookup,ContentFetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"credtrust/internal/contentstore"
	"credtrust/internal/document"
	"credtrust/internal/platform/metrics"
	"credtrust/internal/signer"
	"credtrust/internal/verification/models"
	"credtrust/internal/verification/service/mocks"
	dErrors "credtrust/pkg/domain-errors"
	"credtrust/pkg/platform/sentinel"
	tu "credtrust/pkg/testutil"
)

const credentialID = "urn:uuid:0b7c5a1e-2f7d-4c7e-9a53-5d1f2b3c4d5e"

type PipelineSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	signer  *mocks.MockSigner
	lookup  *mocks.MockRevocationLookup
	content *mocks.MockContentFetcher
	metrics *metrics.Metrics
	service *Service
	vc      json.RawMessage
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.signer = mocks.NewMockSigner(s.ctrl)
	s.lookup = mocks.NewMockRevocationLookup(s.ctrl)
	s.content = mocks.NewMockContentFetcher(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = NewService(s.signer, s.lookup,
		WithContentStore(s.content),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	)
	s.vc = tu.SampleCredentialJSON(credentialID)
}

func (s *PipelineSuite) signatureOK() {
	s.signer.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(&signer.VerifyResult{Valid: true}, nil)
}

func (s *PipelineSuite) notStored() {
	s.lookup.EXPECT().FindByID(gomock.Any(), credentialID).Return(nil, sentinel.ErrNotFound)
}

func (s *PipelineSuite) verify(req models.Request) *models.Result {
	res, err := s.service.Verify(context.Background(), req)
	s.Require().NoError(err)
	return res
}

func (s *PipelineSuite) TestAllChecksPassed() {
	s.signatureOK()
	active := tu.NewCredentialBuilder().WithID(credentialID).Build()
	s.lookup.EXPECT().FindByID(gomock.Any(), credentialID).Return(&active, nil)

	res := s.verify(models.Request{Credential: s.vc})
	s.True(res.Valid)
	s.Equal([]string{models.ReasonAllChecksPassed}, res.Reasons)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Verifications.WithLabelValues("valid")))
}

func (s *PipelineSuite) TestUnknownCredentialIsNotARevocationFailure() {
	s.signatureOK()
	s.notStored()

	res := s.verify(models.Request{Credential: s.vc})
	s.True(res.Valid)
	s.Equal([]string{models.ReasonAllChecksPassed}, res.Reasons)
}

func (s *PipelineSuite) TestSignatureInvalidWithDetail() {
	s.signer.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(&signer.VerifyResult{Valid: false, Detail: "proof mismatch"}, nil)
	s.notStored()

	res := s.verify(models.Request{Credential: s.vc})
	s.False(res.Valid)
	s.Equal([]string{"signature_invalid", "signature_error: proof mismatch"}, res.Reasons)
}

func (s *PipelineSuite) TestSignerTransportError() {
	s.signer.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("signer: %w", sentinel.ErrUnavailable))
	s.notStored()

	res := s.verify(models.Request{Credential: s.vc})
	s.False(res.Valid)
	s.Equal([]string{"signature_invalid", "signature_error: signer unavailable"}, res.Reasons)
}

func (s *PipelineSuite) TestNoSignerConfigured() {
	svc := NewService(nil, nil)
	res := svc.VerifyDocument(context.Background(), s.parse(s.vc), "")
	s.False(res.Valid)
	s.Equal(models.ReasonSignatureInvalid, res.Reasons[0])
}

func (s *PipelineSuite) TestRevokedCredential() {
	s.signatureOK()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	revoked := tu.NewCredentialBuilder().WithID(credentialID).Revoked(at, "key compromised").Build()
	s.lookup.EXPECT().FindByID(gomock.Any(), credentialID).Return(&revoked, nil)

	res := s.verify(models.Request{Credential: s.vc, ContentAddress: "ipfs://bafy"})
	s.False(res.Valid)
	s.Equal([]string{
		"revoked",
		"revoked_at: 2026-03-01T12:00:00Z",
		"revocation_reason: key compromised",
	}, res.Reasons)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.VerificationStages.WithLabelValues("revocation", "failed")))
}

func (s *PipelineSuite) TestBothStagesFailInStageOrder() {
	s.signer.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(&signer.VerifyResult{Valid: false}, nil)
	revoked := tu.NewCredentialBuilder().WithID(credentialID).Revoked(time.Now(), "x").Build()
	s.lookup.EXPECT().FindByID(gomock.Any(), credentialID).Return(&revoked, nil)

	res := s.verify(models.Request{Credential: s.vc})
	s.False(res.Valid)
	s.Equal("signature_invalid", res.Reasons[0])
	s.Equal("revoked", res.Reasons[1])
}

func (s *PipelineSuite) TestRevocationStoreFailureIsInformational() {
	s.signatureOK()
	s.lookup.EXPECT().FindByID(gomock.Any(), credentialID).Return(nil, errors.New("connection refused"))

	res := s.verify(models.Request{Credential: s.vc})
	s.True(res.Valid)
	s.Equal([]string{models.ReasonRevocationCheckFailed}, res.Reasons)
}

func (s *PipelineSuite) TestIntegrityMatch() {
	s.signatureOK()
	s.notStored()
	s.content.EXPECT().Fetch(gomock.Any(), "ipfs://bafy").Return(s.reordered(), nil)

	res := s.verify(models.Request{Credential: s.vc, ContentAddress: "ipfs://bafy"})
	s.True(res.Valid)
	s.Equal([]string{models.ReasonAllChecksPassed}, res.Reasons)
}

func (s *PipelineSuite) TestIntegrityMismatch() {
	s.signatureOK()
	s.notStored()
	s.content.EXPECT().Fetch(gomock.Any(), "ipfs://bafy").Return([]byte(`{"id":"something else"}`), nil)

	res := s.verify(models.Request{Credential: s.vc, ContentAddress: "ipfs://bafy"})
	s.False(res.Valid)
	s.Equal([]string{models.ReasonIntegrityMismatch}, res.Reasons)
}

func (s *PipelineSuite) TestIntegrityFetchFailureIsInformational() {
	s.signatureOK()
	s.notStored()
	s.content.EXPECT().Fetch(gomock.Any(), "ipfs://bafy").Return(nil, fmt.Errorf("fetch: %w", context.DeadlineExceeded))

	res := s.verify(models.Request{Credential: s.vc, ContentAddress: "ipfs://bafy"})
	s.True(res.Valid)
	s.Equal([]string{"ipfs_check_failed: timeout"}, res.Reasons)

	s.Equal("content not found", fetchDetail(contentstore.ErrNotFound))
}

func (s *PipelineSuite) TestIntegritySkippedAfterFailure() {
	s.signer.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(&signer.VerifyResult{Valid: false}, nil)
	s.notStored()

	res := s.verify(models.Request{Credential: s.vc, ContentAddress: "ipfs://bafy"})
	s.False(res.Valid)
	s.Equal([]string{models.ReasonSignatureInvalid}, res.Reasons)
}

func (s *PipelineSuite) TestPresentationUsesFirstCredential() {
	s.signatureOK()
	s.notStored()
	vp, err := json.Marshal(map[string]any{
		"@context":             []string{"https://www.w3.org/2018/credentials/v1"},
		"type":                 []string{"VerifiablePresentation"},
		"holder":               tu.TestHolderID,
		"verifiableCredential": []json.RawMessage{s.vc},
	})
	s.Require().NoError(err)
	s.content.EXPECT().Fetch(gomock.Any(), "ipfs://bafy").Return(s.reordered(), nil)

	res := s.verify(models.Request{Presentation: vp, ContentAddress: "ipfs://bafy"})
	s.True(res.Valid)
}

func (s *PipelineSuite) TestMissingDocument() {
	_, err := s.service.Verify(context.Background(), models.Request{})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Verify(context.Background(), models.Request{Credential: json.RawMessage(`[1,2]`)})
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

// reordered returns the sample credential with keys in a different order.
func (s *PipelineSuite) reordered() []byte {
	var v map[string]any
	s.Require().NoError(json.Unmarshal(s.vc, &v))
	out, err := json.MarshalIndent(v, "", "  ")
	s.Require().NoError(err)
	return out
}

func (s *PipelineSuite) parse(raw json.RawMessage) *document.Document {
	doc, err := document.ParseCredential(raw)
	s.Require().NoError(err)
	return doc
}
