package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
	"github.com/tidwall/gjson"

	"credtrust/internal/document"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	ResponseField(path string) gjson.Result
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	Save(name, value string)
	Recall(name string) (string, error)
	PinContent(cid string, blob []byte) error
}

// Saved value names shared with other step packages.
const (
	SavedCredentialID = "credentialId"
	SavedCredential   = "verifiableCredential"
	SavedPresentation = "verifiablePresentation"
)

// RegisterSteps registers credential lifecycle step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &credentialSteps{tc: tc}

	// Issuance and status
	ctx.Step(`^I issue a "([^"]*)" credential to "([^"]*)"$`, steps.issueCredential)
	ctx.Step(`^I check the status of the issued credential$`, steps.checkStatus)
	ctx.Step(`^the issued credential is pinned at "([^"]*)"$`, steps.pinIssuedCredential)

	// Revocation
	ctx.Step(`^I revoke the issued credential$`, steps.revoke)
	ctx.Step(`^I revoke the issued credential with reason "([^"]*)"$`, steps.revokeWithReason)
	ctx.Step(`^I revoke the issued credential with two-factor code "([^"]*)"$`, steps.revokeWithCode)

	// Verification
	ctx.Step(`^I verify the issued credential$`, steps.verifyIssued)
	ctx.Step(`^I verify the issued credential against content address "([^"]*)"$`, steps.verifyIssuedAgainst)
	ctx.Step(`^I verify the presentation$`, steps.verifyPresentation)
	ctx.Step(`^the verification should be (valid|invalid)$`, steps.verificationShouldBe)
	ctx.Step(`^the reasons should be "([^"]*)"$`, steps.reasonsShouldBe)
	ctx.Step(`^the reasons should include "([^"]*)"$`, steps.reasonsShouldInclude)

	// Presentations
	ctx.Step(`^I present the issued credential as "([^"]*)" disclosing "([^"]*)"$`, steps.presentDisclosing)
	ctx.Step(`^I present the issued credential as "([^"]*)" disclosing "([^"]*)" proving "([^"]*)" (gt|gte|lt|lte|eq) "([^"]*)"$`, steps.presentProving)
	ctx.Step(`^the disclosed subject field "([^"]*)" should equal "([^"]*)"$`, steps.disclosedFieldShouldEqual)
	ctx.Step(`^the disclosed subject should not contain "([^"]*)"$`, steps.disclosedShouldNotContain)
}

type credentialSteps struct {
	tc TestContext
}

func (s *credentialSteps) issueCredential(ctx context.Context, credentialType, holder string) error {
	err := s.tc.POST("/issue", map[string]any{
		"holderId": holder,
		"type":     credentialType,
		"credentialSubject": map[string]any{
			"name":           "Alice",
			"degree":         map[string]any{"type": "BachelorDegree", "name": "Computer Science"},
			"gpa":            3.8,
			"credits":        120,
			"graduationDate": "2024-06-15",
		},
	})
	if err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 200 {
		return fmt.Errorf("issue failed with %d: %s", s.tc.GetLastResponseStatus(), s.tc.GetLastResponseBody())
	}
	s.tc.Save(SavedCredentialID, s.tc.ResponseField("credentialId").String())
	s.tc.Save(SavedCredential, s.tc.ResponseField("verifiableCredential").Raw)
	return nil
}

func (s *credentialSteps) checkStatus(ctx context.Context) error {
	id, err := s.tc.Recall(SavedCredentialID)
	if err != nil {
		return err
	}
	return s.tc.GET("/status/" + id)
}

func (s *credentialSteps) pinIssuedCredential(ctx context.Context, cid string) error {
	vc, err := s.tc.Recall(SavedCredential)
	if err != nil {
		return err
	}
	return s.tc.PinContent(cid, []byte(vc))
}

func (s *credentialSteps) revoke(ctx context.Context) error {
	return s.revokeWith(map[string]any{})
}

func (s *credentialSteps) revokeWithReason(ctx context.Context, reason string) error {
	return s.revokeWith(map[string]any{"reason": reason})
}

func (s *credentialSteps) revokeWithCode(ctx context.Context, code string) error {
	return s.revokeWith(map[string]any{"twoFA": code})
}

// RevokeWith is shared with the two-factor steps.
func RevokeWith(tc TestContext, body map[string]any) error {
	id, err := tc.Recall(SavedCredentialID)
	if err != nil {
		return err
	}
	body["credentialId"] = id
	return tc.POST("/revoke", body)
}

func (s *credentialSteps) revokeWith(body map[string]any) error {
	return RevokeWith(s.tc, body)
}

func (s *credentialSteps) verifyIssued(ctx context.Context) error {
	return s.verifyIssuedAgainst(ctx, "")
}

func (s *credentialSteps) verifyIssuedAgainst(ctx context.Context, address string) error {
	vc, err := s.tc.Recall(SavedCredential)
	if err != nil {
		return err
	}
	body := map[string]any{"vc": json.RawMessage(vc)}
	if address != "" {
		body["contentAddress"] = address
	}
	return s.tc.POST("/verify", body)
}

func (s *credentialSteps) verifyPresentation(ctx context.Context) error {
	vp, err := s.tc.Recall(SavedPresentation)
	if err != nil {
		return err
	}
	return s.tc.POST("/verify", map[string]any{"vp": json.RawMessage(vp)})
}

func (s *credentialSteps) verificationShouldBe(ctx context.Context, expected string) error {
	valid := s.tc.ResponseField("valid")
	if !valid.Exists() {
		return fmt.Errorf("no verification result: %s", s.tc.GetLastResponseBody())
	}
	if valid.Bool() != (expected == "valid") {
		return fmt.Errorf("expected %s verification, got %s", expected, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *credentialSteps) reasons() []string {
	var out []string
	for _, r := range s.tc.ResponseField("reasons").Array() {
		out = append(out, r.String())
	}
	return out
}

func (s *credentialSteps) reasonsShouldBe(ctx context.Context, expected string) error {
	want := strings.Split(expected, ",")
	for i := range want {
		want[i] = strings.TrimSpace(want[i])
	}
	if got := s.reasons(); !slices.Equal(got, want) {
		return fmt.Errorf("expected reasons %v, got %v", want, got)
	}
	return nil
}

func (s *credentialSteps) reasonsShouldInclude(ctx context.Context, prefix string) error {
	for _, r := range s.reasons() {
		if strings.HasPrefix(r, prefix) {
			return nil
		}
	}
	return fmt.Errorf("no reason starting with %q in %v", prefix, s.reasons())
}

func (s *credentialSteps) presentDisclosing(ctx context.Context, holder, fields string) error {
	return s.present(holder, fields, nil)
}

func (s *credentialSteps) presentProving(ctx context.Context, holder, fields, path, operator, value string) error {
	var v any = value
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		v = n
	}
	return s.present(holder, fields, map[string]any{path: map[string]any{"operator": operator, "value": v}})
}

func (s *credentialSteps) present(holder, fields string, predicates map[string]any) error {
	id, err := s.tc.Recall(SavedCredentialID)
	if err != nil {
		return err
	}
	var list []string
	for _, f := range strings.Split(fields, ",") {
		if f = strings.TrimSpace(f); f != "" {
			list = append(list, f)
		}
	}
	if err := s.tc.POST("/present", map[string]any{
		"credentialId": id,
		"holderId":     holder,
		"fields":       list,
		"predicates":   predicates,
	}); err != nil {
		return err
	}
	if vp := s.tc.ResponseField("verifiablePresentation"); vp.Exists() {
		s.tc.Save(SavedPresentation, vp.Raw)
	}
	return nil
}

func (s *credentialSteps) disclosedSubject() (gjson.Result, error) {
	vp, err := s.tc.Recall(SavedPresentation)
	if err != nil {
		return gjson.Result{}, err
	}
	doc, err := document.ParsePresentation(json.RawMessage(vp))
	if err != nil {
		return gjson.Result{}, err
	}
	first, err := doc.FirstCredential()
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.ParseBytes(first.SubjectJSON()), nil
}

func (s *credentialSteps) disclosedFieldShouldEqual(ctx context.Context, path, expected string) error {
	subject, err := s.disclosedSubject()
	if err != nil {
		return err
	}
	if got := subject.Get(path).String(); got != expected {
		return fmt.Errorf("disclosed %s: expected %s, got %s (subject %s)", path, expected, got, subject.Raw)
	}
	return nil
}

func (s *credentialSteps) disclosedShouldNotContain(ctx context.Context, path string) error {
	subject, err := s.disclosedSubject()
	if err != nil {
		return err
	}
	if subject.Get(path).Exists() {
		return fmt.Errorf("disclosed subject unexpectedly contains %s: %s", path, subject.Raw)
	}
	return nil
}
