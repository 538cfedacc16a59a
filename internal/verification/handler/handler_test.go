package handler

//go:generate mockgen -source=handler.go -destination=mocks/handler_mock.go -package=mocks Service

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"credtrust/internal/verification/handler/mocks"
	"credtrust/internal/verification/models"
	dErrors "credtrust/pkg/domain-errors"
)

func newRouter(t *testing.T) (http.Handler, *mocks.MockService) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))).Register(r)
	return r, svc
}

func post(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestVerifyCredential(t *testing.T) {
	router, svc := newRouter(t)
	svc.EXPECT().Verify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, req models.Request) (*models.Result, error) {
			assert.JSONEq(t, `{"id":"urn:uuid:1"}`, string(req.Credential))
			assert.Nil(t, req.Presentation)
			assert.Equal(t, "ipfs://bafy", req.ContentAddress)
			return models.NewResult(), nil
		})

	rec := post(router, `{"vc":{"id":"urn:uuid:1"},"contentAddress":" ipfs://bafy "}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":true,"reasons":["all_checks_passed"]}`, rec.Body.String())
}

func TestVerifyInvalidIsStill200(t *testing.T) {
	router, svc := newRouter(t)
	svc.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(models.NewResult(models.Outcome{
		Stage:   models.StageRevocation,
		Result:  models.StageFailed,
		Reasons: []string{models.ReasonRevoked},
	}), nil)

	rec := post(router, `{"vp":"eyJhbGciOiJIUzI1NiJ9.e30.sig"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	var res models.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"revoked"}, res.Reasons)
}

func TestVerifyRequiresDocument(t *testing.T) {
	router, _ := newRouter(t)
	for _, body := range []string{`{}`, `{"vc":null}`, `{"contentAddress":"ipfs://x"}`} {
		rec := post(router, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), "validation_failed")
	}
}

func TestVerifyMalformedDocument(t *testing.T) {
	router, svc := newRouter(t)
	svc.EXPECT().Verify(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeBadRequest, "document could not be parsed"))

	rec := post(router, `{"vc":42}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
