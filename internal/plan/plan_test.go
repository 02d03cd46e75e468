package plan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	response string
	err      error
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string) (string, error) {
	return f.response, f.err
}

func TestService_ProposeParsesCandidates(t *testing.T) {
	svc := NewServiceWithProvider(&fakeProvider{response: `[
		{"title": "Add rate limiting", "description": "Throttle repeated requests", "acceptance_criteria": ["returns 429 past the limit"]},
		{"title": "Document the API", "description": "Write usage docs", "acceptance_criteria": ["docs published"]}
	]`})

	candidates, err := svc.Propose(context.Background(), "harden the public API")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, "Add rate limiting", candidates[0].Title)
	require.Equal(t, []string{"returns 429 past the limit"}, candidates[0].AcceptanceCriteria)
}

func TestService_ProposeStripsCodeFences(t *testing.T) {
	svc := NewServiceWithProvider(&fakeProvider{response: "```json\n[{\"title\": \"Fix flaky test\", \"description\": \"\", \"acceptance_criteria\": []}]\n```"})

	candidates, err := svc.Propose(context.Background(), "stabilize CI")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "Fix flaky test", candidates[0].Title)
}

func TestService_ProposeRejectsEmptyBrief(t *testing.T) {
	svc := NewServiceWithProvider(&fakeProvider{})
	_, err := svc.Propose(context.Background(), "   ")
	require.Error(t, err)
}

func TestService_ProposeRejectsZeroCandidates(t *testing.T) {
	svc := NewServiceWithProvider(&fakeProvider{response: `[]`})
	_, err := svc.Propose(context.Background(), "anything")
	require.Error(t, err)
}

func TestService_ProposeRejectsMalformedJSON(t *testing.T) {
	svc := NewServiceWithProvider(&fakeProvider{response: `not json`})
	_, err := svc.Propose(context.Background(), "anything")
	require.Error(t, err)
}

func TestService_ProposeRejectsCandidateWithEmptyTitle(t *testing.T) {
	svc := NewServiceWithProvider(&fakeProvider{response: `[{"title": "", "description": "x", "acceptance_criteria": []}]`})
	_, err := svc.Propose(context.Background(), "anything")
	require.Error(t, err)
}
