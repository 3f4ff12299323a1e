package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	stageReason  string
	stageComment string
)

func init() {
	approveCmd.Flags().StringVar(&stageReason, "reason", "", "optional reason recorded with the approval")
	rejectCmd.Flags().StringVar(&stageReason, "reason", "", "reason for rejection (required)")
	changesCmd.Flags().StringVar(&stageComment, "comment", "", "feedback for the regenerated stage (required)")
}

var approveCmd = &cobra.Command{
	Use:   "approve <workflow-id> <stage>",
	Short: "Approve a gated stage",
	Long: `Approve a gated stage via POST /api/v1/workflows/:id/stages/:stage/approve.

For the patches stage, this is the approval the Write Gate requires before
apply_patches is allowed to touch the code host.`,
	Args: cobra.ExactArgs(2),
	RunE: runApprove,
}

var rejectCmd = &cobra.Command{
	Use:   "reject <workflow-id> <stage>",
	Short: "Reject a gated stage",
	Args:  cobra.ExactArgs(2),
	RunE:  runReject,
}

var changesCmd = &cobra.Command{
	Use:   "request-changes <workflow-id> <stage>",
	Short: "Request changes on a gated stage, triggering regeneration",
	Args:  cobra.ExactArgs(2),
	RunE:  runRequestChanges,
}

// stageActionRequest matches internal/api.StageActionRequest.
type stageActionRequest struct {
	Reason  string `json:"reason,omitempty"`
	Comment string `json:"comment,omitempty"`
}

func runApprove(cmd *cobra.Command, args []string) error {
	return postStageAction(args[0], args[1], "approve", stageActionRequest{Reason: stageReason})
}

func runReject(cmd *cobra.Command, args []string) error {
	if stageReason == "" {
		return fmt.Errorf("--reason is required")
	}
	return postStageAction(args[0], args[1], "reject", stageActionRequest{Reason: stageReason})
}

func runRequestChanges(cmd *cobra.Command, args []string) error {
	if stageComment == "" {
		return fmt.Errorf("--comment is required")
	}
	return postStageAction(args[0], args[1], "changes", stageActionRequest{Comment: stageComment})
}

func postStageAction(workflowID, stage, action string, req stageActionRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/workflows/%s/stages/%s/%s", serverURL, workflowID, stage, action)
	resp, err := post(url, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return errFromBody(resp)
	}

	fmt.Printf("%s: %s\n", action, stage)
	return nil
}
