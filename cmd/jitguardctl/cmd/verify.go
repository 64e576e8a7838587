package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/terraconstructs/jitaccess/internal/errs"
	"github.com/terraconstructs/jitaccess/internal/token"
)

var (
	verifyServiceAccount string
	verifyAudience       string
	verifyJwksURL        string
)

var verifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Verify an MPA approval token and print the request it encodes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		signer := token.New(&staticJwksSigner{url: verifyJwksURL}, &httpJWKSSource{client: http.DefaultClient}, verifyServiceAccount, verifyAudience)

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		request, err := signer.Verify(ctx, verifyAudience, args[0])
		if err != nil {
			return fmt.Errorf("token rejected (%s): %w", errs.KindOf(err), err)
		}

		fmt.Printf("request %s: %s requests %s on %s, justification %q, window [%s, %s)\n",
			request.ID,
			request.RequestingUser.Email,
			request.Entitlements[0].Role,
			request.Entitlements[0].Project,
			request.Justification,
			request.StartTime.Format(time.RFC3339),
			request.EndTime.Format(time.RFC3339),
		)
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyServiceAccount, "service-account", "", "service account the token must be issued by")
	verifyCmd.Flags().StringVar(&verifyAudience, "audience", "", "audience the token must be scoped to")
	verifyCmd.Flags().StringVar(&verifyJwksURL, "jwks-url", "", "URL to fetch the signer's published JWKS from")
	_ = verifyCmd.MarkFlagRequired("service-account")
	_ = verifyCmd.MarkFlagRequired("audience")
	_ = verifyCmd.MarkFlagRequired("jwks-url")
}

// staticJwksSigner satisfies clients.JwtSigner for verification-only use: the
// CLI never signs, so Sign is unreachable in practice, and JwksURL ignores
// its argument in favor of the flag-supplied URL.
type staticJwksSigner struct {
	url string
}

func (s *staticJwksSigner) Sign(context.Context, string, map[string]any) (string, error) {
	return "", errs.New(errs.NotSupported, "jitguardctl verify does not sign tokens")
}

func (s *staticJwksSigner) JwksURL(string) string { return s.url }

// httpJWKSSource fetches a JWKS document over plain HTTP, the way an
// operator CLI would reach a service's published key set directly rather
// than through a cloud SDK client.
type httpJWKSSource struct {
	client *http.Client
}

func (h *httpJWKSSource) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch jwks: unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
