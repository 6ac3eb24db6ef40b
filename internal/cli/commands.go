package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zarlcorp/mocaport/internal/catalog"
	"github.com/zarlcorp/mocaport/internal/config"
	"github.com/zarlcorp/mocaport/internal/credential"
	"github.com/zarlcorp/mocaport/internal/identity"
	"github.com/zarlcorp/mocaport/internal/portal"
	"github.com/zarlcorp/mocaport/internal/reputation"
	"github.com/zarlcorp/mocaport/internal/session"
	"github.com/zarlcorp/mocaport/internal/verify"
)

func (r *runner) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// version needs neither config nor store
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(*cobra.Command, []string) {
			r.printf("mocaport %s\n", r.env.Version)
		},
	}
}

func (r *runner) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "login <provider>",
		Short:     "Sign in with google, twitter, email or wallet",
		Args:      cobra.ExactArgs(1),
		ValidArgs: identity.Providers,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withPortal(cmd.Context(), func(p *portal.Portal) error {
				id, err := p.Login(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				r.printf("signed in as %s\n", id.MocaID)
				r.printIdentity(id)
				return nil
			})
		},
	}
}

func (r *runner) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and delete everything stored for the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withPortal(cmd.Context(), func(p *portal.Portal) error {
				res := p.Logout(cmd.Context())
				r.printf("%s\n", res.Summary())
				if res.HasErrors() {
					return errors.New("logout incomplete")
				}
				return nil
			})
		},
	}
}

func (r *runner) whoamiCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withPortal(cmd.Context(), func(p *portal.Portal) error {
				id, ok := p.Identity()
				if !ok {
					return session.ErrNoIdentity
				}
				if asJSON {
					return printJSON(r.env.Out, id)
				}
				r.printIdentity(id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func (r *runner) stampsCmd() *cobra.Command {
	var (
		category string
		search   string
		all      bool
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "stamps",
		Short: "List claimable stamps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withPortal(cmd.Context(), func(p *portal.Portal) error {
				f := catalog.Filter{Search: search, Category: category}

				stamps := p.Available(f)
				if all {
					stamps = p.Catalog().Available(f, func(string) bool { return false })
				}

				if asJSON {
					return printJSON(r.env.Out, stamps)
				}
				if len(stamps) == 0 {
					r.printf("no stamps match\n")
					return nil
				}
				for _, s := range stamps {
					odds := "-"
					if rate, ok := p.SuccessRate(s.VerificationMethod); ok {
						odds = fmt.Sprintf("%.0f%%", rate*100)
					}
					r.printf("  %-22s %-24s %-9s %4d pts  %-14s %4s\n",
						s.ID, s.Title, s.Category, s.Points, s.VerificationMethod, odds)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", catalog.AllCategories, "Web3, Web2, Platform or all")
	cmd.Flags().StringVar(&search, "search", "", "match title or description")
	cmd.Flags().BoolVar(&all, "all", false, "include stamps already claimed")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func (r *runner) claimCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "claim <stamp-id>",
		Short: "Verify and claim a stamp",
		Long: `Runs the stamp's verification stages. Ctrl-C cancels without claiming.
With --dry-run the stages run and the outcome is shown, but nothing is stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if dryRun {
				return r.withPortal(ctx, func(p *portal.Portal) error {
					return r.rehearse(ctx, p, args[0])
				})
			}
			return r.withPortal(ctx, func(p *portal.Portal) error {
				a, err := p.Claim(ctx, args[0])
				if err != nil {
					return err
				}
				r.printEvents(a)

				res, err := a.Wait(context.WithoutCancel(ctx))
				if err != nil {
					return err
				}
				if !res.Success {
					r.printf("denied: %s\n", res.DenialReason)
					return nil
				}
				r.printf("claimed %s (+%d points)\n", res.Credential.Title, res.Credential.Points)
				r.printf("  proof: %s\n", res.ProofHash)
				if res.Credential.Metadata["on_chain_verified"] == "true" {
					r.printf("  anchored on chain\n")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run the stages without claiming")
	return cmd
}

func (r *runner) rehearse(ctx context.Context, p *portal.Portal, stampID string) error {
	a, err := p.Rehearse(ctx, stampID)
	if err != nil {
		return err
	}
	r.printEvents(a)

	res, err := a.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	if !res.Success {
		r.printf("would be denied: %s\n", res.DenialReason)
		return nil
	}
	r.printf("would pass, nothing stored\n")
	return nil
}

func (r *runner) anchorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "anchor <credential-id>",
		Short: "Check a held credential's proof on chain with the wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return r.withPortal(ctx, func(p *portal.Portal) error {
				if _, ok := p.Identity(); !ok {
					return session.ErrNoIdentity
				}
				if _, err := p.Wallet().Connect(ctx); err != nil {
					return err
				}

				out, err := p.AnchorCredential(ctx, args[0])
				if err != nil {
					return err
				}
				if !out.Verified {
					r.printf("proof not confirmed on chain\n")
					return nil
				}
				r.printf("proof confirmed on chain\n")
				r.printf("  tx: %s\n", out.TxHash)
				return nil
			})
		},
	}
}

func (r *runner) credentialsCmd() *cobra.Command {
	var (
		category string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "List held credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cat credential.Category
			if category != "" && !strings.EqualFold(category, catalog.AllCategories) {
				c, ok := credential.ParseCategory(category)
				if !ok {
					return fmt.Errorf("unknown category %q", category)
				}
				cat = c
			}

			return r.withPortal(cmd.Context(), func(p *portal.Portal) error {
				if _, ok := p.Identity(); !ok {
					return session.ErrNoIdentity
				}

				creds := p.Credentials(cat)
				sort.Slice(creds, func(i, j int) bool {
					return creds[i].IssuanceDate.After(creds[j].IssuanceDate)
				})

				if asJSON {
					return printJSON(r.env.Out, creds)
				}
				if len(creds) == 0 {
					r.printf("no credentials\n")
					return nil
				}
				for _, c := range creds {
					r.printf("  %-28s %-24s %-9s %4d pts  %s\n",
						c.ID, c.Title, c.Category, c.Points, c.IssuanceDate.Format("2006-01-02"))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Web3, Web2 or Platform")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func (r *runner) forgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <credential-id>",
		Short: "Remove a held credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withPortal(cmd.Context(), func(p *portal.Portal) error {
				if err := p.Forget(args[0]); err != nil {
					return err
				}
				r.printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}

type scoreReport struct {
	Score      int            `json:"score"`
	MaxScore   int            `json:"max_score"`
	Level      string         `json:"level"`
	Percentile int            `json:"percentile"`
	Percent    int            `json:"percent"`
	Count      int            `json:"credentials"`
	Breakdown  map[string]int `json:"breakdown"`
	NextLevel  string         `json:"next_level,omitempty"`
	NextAt     int            `json:"next_at,omitempty"`
}

func (r *runner) scoreCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Show the reputation score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withPortal(cmd.Context(), func(p *portal.Portal) error {
				if _, ok := p.Identity(); !ok {
					return session.ErrNoIdentity
				}

				snap := p.Reputation()
				rep := scoreReport{
					Score:      snap.Score,
					MaxScore:   snap.MaxScore,
					Level:      string(snap.Level),
					Percentile: snap.Percentile,
					Percent:    snap.Percent,
					Count:      snap.Count,
					Breakdown:  make(map[string]int, len(snap.Breakdown)),
				}
				for c, pts := range snap.Breakdown {
					rep.Breakdown[string(c)] = pts
				}
				if snap.Level != reputation.Expert {
					next, at := reputation.Next(snap.Score, snap.MaxScore)
					rep.NextLevel, rep.NextAt = string(next), at
				}

				if asJSON {
					return printJSON(r.env.Out, rep)
				}

				r.printf("  score:      %d / %d (%d%%)\n", rep.Score, rep.MaxScore, rep.Percent)
				r.printf("  level:      %s\n", rep.Level)
				r.printf("  percentile: %d\n", rep.Percentile)
				for _, c := range credential.Categories {
					r.printf("  %-11s %d\n", string(c)+":", rep.Breakdown[string(c)])
				}
				if rep.NextLevel != "" {
					r.printf("  next:       %s at %d\n", rep.NextLevel, rep.NextAt)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func (r *runner) requestCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "request <requester> <credential-title>",
		Short: "Answer a simulated verification request from a dApp",
		Long: `Simulates a dApp asking you to prove a held credential. Answer y to
approve; anything else denies. No answer before the timeout denies.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("timeout") {
				r.cfg.Verification.PromptTimeout = config.Duration{Duration: timeout}
			}
			ctx := cmd.Context()

			return r.withPortal(ctx, func(p *portal.Portal) error {
				req, err := p.Request(args[0], args[1])
				if err != nil {
					return err
				}
				if err := r.answer(ctx, req); err != nil {
					return err
				}

				st, err := req.Wait(ctx)
				if err != nil {
					return err
				}
				if st.State != verify.RequestEligible {
					r.printf("denied: %s\n", st.Reason)
					return nil
				}

				tx, err := req.Claim()
				if err != nil {
					return err
				}
				r.printf("eligible: proof %s\n", st.ProofHash)
				r.printf("claimed: tx %s\n", tx)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", verify.DefaultPromptTimeout, "how long to wait for an answer")
	return cmd
}

// answer prompts for y/n and applies it unless the request expires first.
func (r *runner) answer(ctx context.Context, req *verify.Request) error {
	st := req.Status()
	r.printf("%s requests proof of %q. approve? [y/N] ", st.Requester, st.Credential)

	changed := req.Changed()
	if req.Status().State != verify.RequestRequesting {
		r.printf("\n")
		return nil
	}

	answers := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(r.env.In).ReadString('\n')
		answers <- strings.TrimSpace(line)
	}()

	select {
	case a := <-answers:
		if !strings.EqualFold(a, "y") && !strings.EqualFold(a, "yes") {
			return ignoreTransition(req.Deny())
		}
		if err := ignoreTransition(req.Approve(ctx)); err != nil {
			return err
		}
		if a := req.Attempt(); a != nil {
			r.printEvents(a)
		}
		return nil
	case <-changed:
		r.printf("\n")
		return nil
	case <-ctx.Done():
		r.printf("\n")
		return ignoreTransition(req.Deny())
	}
}

// ignoreTransition drops ErrInvalidTransition, which means the request
// settled while the answer was being read.
func ignoreTransition(err error) error {
	if errors.Is(err, verify.ErrInvalidTransition) {
		return nil
	}
	return err
}

func (r *runner) mintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mint",
		Short: "Connect the wallet and mint the reputation score as a token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return r.withPortal(ctx, func(p *portal.Portal) error {
				if _, ok := p.Identity(); !ok {
					return session.ErrNoIdentity
				}
				acct, err := p.Wallet().Connect(ctx)
				if err != nil {
					return err
				}
				r.printf("wallet %s\n", acct.Address)

				m, err := p.MintReputation(ctx)
				if err != nil {
					return err
				}
				r.printf("minted token #%d for score %d\n", m.TokenID, m.Score)
				r.printf("  tx:        %s\n", m.TxHash)
				r.printf("  signature: %s\n", m.Signature)
				return nil
			})
		},
	}
}

func (r *runner) printEvents(a *verify.Attempt) {
	for ev := range a.Events() {
		if ev.Final {
			continue
		}
		r.printf("  [%d/%d] %s\n", ev.Stage+1, ev.Total, ev.Step.Title)
	}
}

func (r *runner) printIdentity(id identity.Identity) {
	r.printf("  name:     %s\n", id.Name)
	r.printf("  email:    %s\n", id.Email)
	r.printf("  moca id:  %s\n", id.MocaID)
	r.printf("  provider: %s\n", id.Provider)
	r.printf("  since:    %s\n", id.CreatedAt.Format("2006-01-02"))
}
