package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/manifoldco/promptui"

	"nudge/internal/app/reminder"
)

// promptSender asks for confirmation on the terminal.
type promptSender struct {
	stdin  io.ReadCloser
	stdout io.WriteCloser
}

var _ reminder.ConfirmSender = promptSender{}

func (p promptSender) SendConfirmation(_ context.Context, draft reminder.NoteDraft) (reminder.ConfirmationResult, error) {
	label := fmt.Sprintf("%s, %s", draft.Title, draft.DisplayText)
	if draft.LowConfidence {
		label += " (already passed?)"
	}
	sel := promptui.Select{
		Label:  label,
		Items:  draft.SuggestedActions,
		Stdin:  p.stdin,
		Stdout: p.stdout,
	}
	_, choice, err := sel.Run()
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return reminder.ActionDismiss.Result(draft, ""), nil
	}
	if err != nil {
		return reminder.ConfirmationResult{}, fmt.Errorf("confirmation prompt: %w", err)
	}

	action, _ := reminder.ParseAction(choice)
	if action != reminder.ActionEdit {
		return action.Result(draft, ""), nil
	}
	edit := promptui.Prompt{
		Label:     "Message",
		Default:   draft.Body,
		AllowEdit: true,
		Stdin:     p.stdin,
		Stdout:    p.stdout,
		Validate: func(s string) error {
			if s == "" {
				return errors.New("message cannot be empty")
			}
			return nil
		},
	}
	body, err := edit.Run()
	if err != nil {
		return reminder.ActionDismiss.Result(draft, ""), nil
	}
	return action.Result(draft, body), nil
}
