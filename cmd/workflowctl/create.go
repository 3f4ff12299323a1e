package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	createFeatureGoal string
	createJustification string
	createRepos         []string
)

func init() {
	createCmd.Flags().StringVar(&createFeatureGoal, "goal", "", "feature goal (required)")
	createCmd.Flags().StringVar(&createJustification, "justification", "", "business justification")
	createCmd.Flags().StringSliceVar(&createRepos, "repo", nil, "owner/name[:baseBranch] of a target repo (repeatable, required)")
	_ = createCmd.MarkFlagRequired("goal")
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new feature workflow",
	Long: `Create a new feature workflow via POST /api/v1/workflows.

Examples:
  workflowctl create --goal "add dark mode" --repo acme/webapp:main

  workflowctl create --goal "add dark mode" --justification "top support request" \
    --repo acme/webapp:main --repo acme/docs:main`,
	RunE: runCreate,
}

// createWorkflowRequest matches internal/api.CreateWorkflowRequest.
type createWorkflowRequest struct {
	FeatureGoal           string           `json:"featureGoal"`
	BusinessJustification string           `json:"businessJustification,omitempty"`
	Repos                 []createRepoSpec `json:"repos"`
}

type createRepoSpec struct {
	Owner      string `json:"owner"`
	Name       string `json:"name"`
	BaseBranch string `json:"baseBranch,omitempty"`
}

type createWorkflowResponse struct {
	WorkflowID string `json:"workflowId"`
}

func runCreate(cmd *cobra.Command, args []string) error {
	if len(createRepos) == 0 {
		return fmt.Errorf("at least one --repo is required")
	}

	repos := make([]createRepoSpec, 0, len(createRepos))
	for _, r := range createRepos {
		spec, err := parseRepoSpec(r)
		if err != nil {
			return err
		}
		repos = append(repos, spec)
	}

	reqBody := createWorkflowRequest{
		FeatureGoal:           createFeatureGoal,
		BusinessJustification: createJustification,
		Repos:                 repos,
	}
	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := post(fmt.Sprintf("%s/api/v1/workflows", serverURL), reqJSON)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return errFromBody(resp)
	}

	var created createWorkflowResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Println(created.WorkflowID)
	return nil
}

// parseRepoSpec parses "owner/name[:baseBranch]".
func parseRepoSpec(s string) (createRepoSpec, error) {
	ownerName := s
	baseBranch := ""
	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		ownerName = s[:idx]
		baseBranch = s[idx+1:]
	}
	parts := strings.SplitN(ownerName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return createRepoSpec{}, fmt.Errorf("invalid --repo %q, expected owner/name[:baseBranch]", s)
	}
	return createRepoSpec{Owner: parts[0], Name: parts[1], BaseBranch: baseBranch}, nil
}

func post(url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c := &http.Client{Timeout: 30 * time.Second}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	return resp, nil
}

func errFromBody(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
}
