package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <workflow-id>",
	Short: "Show a workflow's current state",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var artifactCmd = &cobra.Command{
	Use:   "artifact <workflow-id> <kind>",
	Short: "Print the latest artifact of a given kind (FeasibilityV1, ArchitectureV1, TimelineV1, SummaryV1, PatchSetV1)",
	Args:  cobra.ExactArgs(2),
	RunE:  runArtifact,
}

// workflowResponse matches internal/api.WorkflowResponse.
type workflowResponse struct {
	ID                    string `json:"id"`
	State                 string `json:"state"`
	Stage                 string `json:"stage"`
	StageStatus           string `json:"stageStatus"`
	FeatureGoal           string `json:"featureGoal"`
	BusinessJustification string `json:"businessJustification"`
	Feedback              string `json:"feedback,omitempty"`
	BaseSha               string `json:"baseSha,omitempty"`
}

// artifactResponse matches internal/api.ArtifactResponse.
type artifactResponse struct {
	Kind            string `json:"kind"`
	Content         string `json:"content"`
	ContentSha      string `json:"contentSha"`
	ArtifactVersion int    `json:"artifactVersion"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	resp, err := get(fmt.Sprintf("%s/api/v1/workflows/%s", serverURL, args[0]))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errFromBody(resp)
	}

	var wf workflowResponse
	if err := json.NewDecoder(resp.Body).Decode(&wf); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("id:      %s\n", wf.ID)
	fmt.Printf("state:   %s\n", wf.State)
	fmt.Printf("stage:   %s (%s)\n", wf.Stage, wf.StageStatus)
	fmt.Printf("goal:    %s\n", wf.FeatureGoal)
	if wf.Feedback != "" {
		fmt.Printf("feedback: %s\n", wf.Feedback)
	}
	return nil
}

func runArtifact(cmd *cobra.Command, args []string) error {
	workflowID, kind := args[0], args[1]
	resp, err := get(fmt.Sprintf("%s/api/v1/workflows/%s/artifacts/%s", serverURL, workflowID, kind))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errFromBody(resp)
	}

	var artifact artifactResponse
	if err := json.NewDecoder(resp.Body).Decode(&artifact); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Println(artifact.Content)
	return nil
}

func get(url string) (*http.Response, error) {
	c := &http.Client{Timeout: 10 * time.Second}
	resp, err := c.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	return resp, nil
}
