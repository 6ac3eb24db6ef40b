// Package verify simulates credential verification: timed proof stages,
// randomized outcomes and third-party verification requests. Nothing here
// touches a network.
package verify

import (
	"time"

	"github.com/zarlcorp/mocaport/internal/credential"
)

// Step is one stage of a verification run.
type Step struct {
	Index   int
	Title   string
	Detail  string
	Nominal time.Duration
}

var plans = map[credential.Method][]Step{
	credential.MethodZKTLS: {
		{Title: "Initialize zkTLS Session", Detail: "Setting up secure connection to external service", Nominal: 2 * time.Second},
		{Title: "Authenticate with Service", Detail: "Logging into your account securely", Nominal: 3 * time.Second},
		{Title: "Generate Zero-Knowledge Proof", Detail: "Creating cryptographic proof without revealing data", Nominal: 4 * time.Second},
		{Title: "Verify Proof", Detail: "Validating the proof on Moca Network", Nominal: 2 * time.Second},
	},
	credential.MethodSmartContract: {
		{Title: "Connect to Chain", Detail: "Opening a read session with the Moca Chain node", Nominal: 1 * time.Second},
		{Title: "Query Contract State", Detail: "Reading token balances for your wallet", Nominal: 1500 * time.Millisecond},
		{Title: "Confirm Ownership", Detail: "Checking holdings against the stamp requirements", Nominal: 500 * time.Millisecond},
	},
	credential.MethodAPI: {
		{Title: "Contact Service", Detail: "Requesting participation records", Nominal: 1 * time.Second},
		{Title: "Validate Response", Detail: "Checking records against the stamp requirements", Nominal: 1 * time.Second},
	},
	credential.MethodPlatform: {
		{Title: "Check Membership", Detail: "Looking up your Moca ID in the member registry", Nominal: 1 * time.Second},
		{Title: "Confirm Record", Detail: "Confirming membership is active", Nominal: 1 * time.Second},
	},
}

// onChainStep is appended when a wallet is connected.
var onChainStep = Step{
	Title:   "Verify On-Chain",
	Detail:  "Anchoring the proof with the credential registry contract",
	Nominal: 2 * time.Second,
}

// Plan returns the ordered stages for method. Unknown methods use the
// shortest tier.
func Plan(method credential.Method) []Step {
	src, ok := plans[method]
	if !ok {
		src = plans[credential.MethodAPI]
	}
	return indexed(src)
}

// Latency returns the nominal total duration of method's stages.
func Latency(method credential.Method) time.Duration {
	var total time.Duration
	for _, s := range Plan(method) {
		total += s.Nominal
	}
	return total
}

func withOnChain(steps []Step) []Step {
	return indexed(append(steps[:len(steps):len(steps)], onChainStep))
}

func indexed(src []Step) []Step {
	out := make([]Step, len(src))
	for i, s := range src {
		s.Index = i
		out[i] = s
	}
	return out
}
