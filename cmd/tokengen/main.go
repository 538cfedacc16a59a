// Package main provides a CLI tool for generating test artifacts for the
// CredTrust API: locally signed JWT-VCs and current TOTP codes.
// Credentials use the dev signing key and will NOT verify against a
// production signer.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"credtrust/internal/signer/local"
	"credtrust/internal/twofactor/totp"
)

const (
	// Dev signing key; run the server with the same LOCAL_SIGNER_KEY.
	devSigningKey   = "dev-local-signer-key-change-me"
	defaultIssuerID = "did:example:credtrust-issuer"
	defaultHolderID = "did:example:holder"
)

type vcOutput struct {
	CredentialID         string            `json:"credentialId"`
	VerifiableCredential json.RawMessage   `json:"verifiableCredential"`
	Usage                map[string]string `json:"usage"`
}

type totpOutput struct {
	Code      string `json:"code"`
	ExpiresIn string `json:"expires_in"`
}

func main() {
	vcCmd := flag.NewFlagSet("vc", flag.ExitOnError)
	vcKey := vcCmd.String("key", devSigningKey, "HS256 signing key (LOCAL_SIGNER_KEY)")
	vcIssuer := vcCmd.String("issuer", defaultIssuerID, "Issuer DID")
	vcHolder := vcCmd.String("holder", defaultHolderID, "Holder DID")
	vcType := vcCmd.String("type", "UniversityDegreeCredential", "Comma-separated extra credential types")
	vcJSON := vcCmd.Bool("json", false, "Output as JSON")

	totpCmd := flag.NewFlagSet("totp", flag.ExitOnError)
	totpSecret := totpCmd.String("secret", "", "Base32 TOTP secret from /2fa/setup")
	totpJSON := totpCmd.Bool("json", false, "Output as JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "vc":
		_ = vcCmd.Parse(os.Args[2:])
		generateCredential(*vcKey, *vcIssuer, *vcHolder, *vcType, *vcJSON)
	case "totp":
		_ = totpCmd.Parse(os.Args[2:])
		generateCode(*totpSecret, *totpJSON)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tokengen - Generate test artifacts for the CredTrust API

WARNING: Credentials use a dev signing key. Only use for local development.

Usage:
  tokengen <command> [flags]

Commands:
  vc     Sign a sample JWT-VC with the local HS256 signer
  totp   Print the current TOTP code for a secret

Examples:
  # Sign a degree credential for a holder
  tokengen vc -holder did:example:alice

  # Current code for the secret returned by POST /2fa/setup
  tokengen totp -secret JBSWY3DPEHPK3PXP

Use "tokengen <command> -h" for more information about a command.`)
}

func generateCredential(key, issuer, holder, types string, jsonOutput bool) {
	signer, err := local.New(key, issuer)
	if err != nil {
		fail("build signer", err)
	}

	id := "urn:uuid:" + uuid.NewString()
	credential := map[string]any{
		"@context":     []string{"https://www.w3.org/2018/credentials/v1"},
		"id":           id,
		"type":         append([]string{"VerifiableCredential"}, splitTypes(types)...),
		"issuer":       issuer,
		"issuanceDate": time.Now().UTC().Format(time.RFC3339),
		"credentialSubject": map[string]any{
			"id":     holder,
			"name":   "Alice",
			"degree": map[string]any{"type": "BachelorDegree", "name": "Computer Science"},
			"gpa":    3.8,
		},
	}
	body, err := json.Marshal(credential)
	if err != nil {
		fail("encode credential", err)
	}

	token, err := signer.SignCredential(context.Background(), body)
	if err != nil {
		fail("sign credential", err)
	}

	if jsonOutput {
		printJSON(vcOutput{
			CredentialID:         id,
			VerifiableCredential: token,
			Usage: map[string]string{
				"verify": `POST /verify {"vc": <verifiableCredential>}`,
			},
		})
		return
	}

	var raw string
	_ = json.Unmarshal(token, &raw)
	fmt.Println("Verifiable Credential (JWT-VC)")
	fmt.Println("==============================")
	fmt.Printf("Credential ID: %s\n", id)
	fmt.Printf("Issuer:        %s\n", issuer)
	fmt.Printf("Holder:        %s\n", holder)
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(raw)
}

func generateCode(secret string, jsonOutput bool) {
	if strings.TrimSpace(secret) == "" {
		fmt.Fprintln(os.Stderr, "Error: -secret is required")
		os.Exit(1)
	}

	now := time.Now()
	code, err := totp.GenerateCode(secret, now)
	if err != nil {
		fail("generate code", err)
	}
	remaining := 30*time.Second - time.Duration(now.Unix()%30)*time.Second

	if jsonOutput {
		printJSON(totpOutput{Code: code, ExpiresIn: remaining.String()})
		return
	}
	fmt.Printf("%s (valid for %s)\n", code, remaining)
}

func splitTypes(types string) []string {
	var out []string
	for _, t := range strings.Split(types, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fail("encode output", err)
	}
}

func fail(action string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", action, err)
	os.Exit(1)
}
