package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"lorekeeper/internal/reconcile"
	"lorekeeper/internal/session"
)

var (
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

const reviewHelp = "a: approve  r: reject  s: skip  all: approve the rest  q: quit"

// review walks the pending queue one item at a time. Skipped items are
// discarded with the session when the walk ends.
func review(ctx context.Context, out io.Writer, manager *session.Manager, sess *session.Session) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("review> "),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdout:            out,
	})
	if err != nil {
		return fmt.Errorf("starting review prompt: %w", err)
	}
	defer rl.Close()
	return walkQueue(ctx, out, rl.Readline, manager, sess)
}

// walkQueue drives the review with lines from readLine. An item whose write
// fails stays current so it can be retried or rejected.
func walkQueue(ctx context.Context, out io.Writer, readLine func() (string, error), manager *session.Manager, sess *session.Session) error {
	fmt.Fprintln(out, reviewHelp)
	pending := sess.Pending()
walk:
	for i, item := range pending {
		printItem(out, i+1, len(pending), item.Recommendation)
		for {
			line, err := readLine()
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				break walk
			}
			if err != nil {
				return err
			}

			switch strings.ToLower(strings.TrimSpace(line)) {
			case "a", "approve", "y":
				res, err := manager.Approve(ctx, sess.ID, item.ID)
				if err != nil {
					fmt.Fprintf(out, "%s %v\n", red("failed:"), err)
					if res.State == session.StatePending {
						fmt.Fprintln(out, "a: retry  r: reject  s: skip  q: quit")
						continue
					}
				} else {
					fmt.Fprintln(out, green("approved"))
				}
			case "r", "reject", "n":
				if _, err := manager.Reject(sess.ID, item.ID); err != nil {
					return err
				}
				fmt.Fprintln(out, yellow("rejected"))
			case "s", "skip":
			case "all":
				results, err := manager.ApplyAll(ctx, sess.ID)
				if err != nil {
					return err
				}
				printResults(out, sess, results)
				break walk
			case "q", "quit", "exit":
				break walk
			default:
				fmt.Fprintln(out, reviewHelp)
				continue
			}
			break
		}
	}

	if sess.Closed() {
		return nil
	}
	left := len(sess.Pending())
	if err := manager.Cancel(sess.ID); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d undecided recommendations discarded\n", left)
	return nil
}

func printItem(out io.Writer, position, total int, rec reconcile.Recommendation) {
	fmt.Fprintf(out, "\n[%d/%d] %s %s %s\n", position, total, cyan(strings.ToUpper(string(rec.Action))), rec.Kind.Label(), rec.Candidate.Identity())
	fmt.Fprintf(out, "  %s\n", rec.Reason)

	fields := make([]string, 0, len(rec.Diff))
	for name := range rec.Diff {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	for _, name := range fields {
		change := rec.Diff[name]
		fmt.Fprintf(out, "  %s: %s -> %s\n", yellow(name), red(fmt.Sprint(change.Old)), green(fmt.Sprint(change.New)))
	}
	for _, c := range rec.Contradictions {
		fmt.Fprintf(out, "  %s %s\n", red("!"), describeContradiction(c))
	}
}
