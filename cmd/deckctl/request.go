package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/deckd/internal/model"
	"github.com/jmylchreest/deckd/internal/protocol"
)

// ErrDenied is returned when the deck answers a confirmation with deny.
var ErrDenied = errors.New("denied")

var confirmOpts struct {
	tool   string
	always bool
}

var askOpts struct {
	header  string
	options []string
	multi   bool
}

var notifyOpts struct {
	title string
}

var confirmCmd = &cobra.Command{
	Use:   "confirm <detail>",
	Short: "Ask for a yes or no on the deck",
	Long: `Show a confirmation on the deck and wait for a key press.

The chosen label is printed. A denial exits with status 1, so confirm can
guard shell commands:

  deckctl confirm "rm -rf build" && rm -rf build`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConfirm,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a multiple choice question on the deck",
	Long: `Show a question with up to a page of options and print the answer.

  deckctl ask "Which target?" --option staging --option production`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

var adviseCmd = &cobra.Command{
	Use:   "advise",
	Short: "Show a plan-review notice on the deck",
	Long: `Show an advisory notice telling the human to look at the terminal.
The daemon answers immediately; the notice stays until dismissed or
replaced.`,
	Args: cobra.NoArgs,
	RunE: runAdvise,
}

var notifyCmd = &cobra.Command{
	Use:   "notify <type> [message]",
	Short: "Send a status update",
	Long: `Send a fire-and-forget status update. Types filtered out by the
daemon's [status] types list are dropped.

  deckctl notify idle_prompt "Waiting for input"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runNotify,
}

func init() {
	rootCmd.AddCommand(confirmCmd, askCmd, adviseCmd, notifyCmd)

	confirmCmd.Flags().StringVar(&confirmOpts.tool, "tool", "Bash",
		"Tool name shown as the title")
	confirmCmd.Flags().BoolVar(&confirmOpts.always, "always", false,
		"Offer an Always choice")

	askCmd.Flags().StringVar(&askOpts.header, "header", "",
		"Short header shown above the question")
	askCmd.Flags().StringArrayVarP(&askOpts.options, "option", "o", nil,
		"Answer option (repeatable)")
	askCmd.Flags().BoolVar(&askOpts.multi, "multi", false,
		"Allow several options to be selected")

	notifyCmd.Flags().StringVar(&notifyOpts.title, "title", "",
		"Title (default: derived from the type)")
}

// request sends req, starting the daemon when needed.
func request(ctx context.Context, req *protocol.PermissionRequest) (*protocol.PermissionResponse, error) {
	client, cfg := newClient()
	h := &hookRunner{
		client:       client,
		start:        func() error { return startDaemon(cfg) },
		startTimeout: hookOpts.startTimeout,
		retry:        connectRetryInterval,
	}
	if h.startTimeout <= 0 {
		h.startTimeout = defaultStartTimeout
	}
	if err := h.ensureDaemon(ctx); err != nil {
		return nil, err
	}
	resp, err := client.Request(ctx, req)
	if err != nil {
		return nil, err
	}
	switch resp.Status {
	case protocol.StatusOK, protocol.StatusFallback:
		return resp, nil
	case protocol.StatusNoDevice:
		return nil, errors.New("no deck connected")
	default:
		return nil, fmt.Errorf("request failed: %s", resp.ErrorMessage)
	}
}

func buildConfirmRequest(tool, detail string, always bool, pid int) *protocol.PermissionRequest {
	input, _ := json.Marshal(map[string]string{"command": detail})
	in := &protocol.HookInput{
		HookEventName: protocol.HookPermissionRequest,
		ToolName:      tool,
		ToolInput:     input,
	}
	if always {
		in.PermissionSuggestions = []map[string]any{{"type": "addRules", "tool": tool}}
	}
	return protocol.BuildRequest(in, nil, pid)
}

func runConfirm(cmd *cobra.Command, args []string) error {
	req := buildConfirmRequest(confirmOpts.tool, strings.Join(args, " "), confirmOpts.always, os.Getppid())
	resp, err := request(cmd.Context(), req)
	if err != nil {
		return err
	}
	if resp.Chosen == nil {
		return errors.New("no choice made")
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Chosen.Label)
	if resp.Chosen.Behavior == string(model.BehaviorDeny) {
		return ErrDenied
	}
	return nil
}

func buildAskRequest(question, header string, options []string, multi bool, pid int) (*protocol.PermissionRequest, error) {
	if len(options) == 0 {
		return nil, errors.New("at least one --option is required")
	}
	q := model.Question{Header: header, Prompt: question, MultiSelect: multi}
	for _, o := range options {
		q.Options = append(q.Options, model.Option{Label: o})
	}
	input, err := json.Marshal(model.Interactive{Questions: []model.Question{q}})
	if err != nil {
		return nil, err
	}
	return &protocol.PermissionRequest{
		Type:      protocol.TypePermissionRequest,
		ToolName:  protocol.ToolAskUserQuestion,
		ToolInput: input,
		Choices:   []protocol.Choice{},
		ClientPID: pid,
	}, nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	req, err := buildAskRequest(args[0], askOpts.header, askOpts.options, askOpts.multi, os.Getppid())
	if err != nil {
		return err
	}
	resp, err := request(cmd.Context(), req)
	if err != nil {
		return err
	}
	if len(resp.AskAnswers) == 0 {
		return errors.New("no answer given")
	}
	return printAnswers(cmd.OutOrStdout(), resp.AskAnswers)
}

func printAnswers(w io.Writer, answers map[string]string) error {
	if len(answers) == 1 {
		for _, a := range answers {
			_, err := fmt.Fprintln(w, a)
			return err
		}
	}
	questions := make([]string, 0, len(answers))
	for q := range answers {
		questions = append(questions, q)
	}
	sort.Strings(questions)
	for _, q := range questions {
		if _, err := fmt.Fprintf(w, "%s: %s\n", q, answers[q]); err != nil {
			return err
		}
	}
	return nil
}

func runAdvise(cmd *cobra.Command, _ []string) error {
	_, err := request(cmd.Context(), &protocol.PermissionRequest{
		Type:      protocol.TypePermissionRequest,
		ToolName:  protocol.ToolExitPlanMode,
		Choices:   []protocol.Choice{},
		ClientPID: os.Getppid(),
	})
	return err
}

func runNotify(cmd *cobra.Command, args []string) error {
	n := &protocol.Notification{
		Type:             protocol.TypeNotification,
		NotificationType: args[0],
		Title:            notifyOpts.title,
		ClientPID:        os.Getppid(),
	}
	if len(args) > 1 {
		n.Message = args[1]
	}
	client, _ := newClient()
	return client.Notify(cmd.Context(), n)
}
