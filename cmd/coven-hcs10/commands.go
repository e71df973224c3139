// ABOUTME: Subcommand implementations for coven-hcs10
// ABOUTME: Each command opens the app, syncs as needed and prints human-readable output

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-hcs10/internal/hcs"
	"github.com/2389/coven-hcs10/internal/messaging"
)

const timeLayout = "2006-01-02 15:04:05"

// withApp opens the app for the selected agent, optionally syncs, and
// closes it when fn returns.
func withApp(ctx context.Context, a *cmdArgs, doSync bool, fn func(*app) error) error {
	ap, err := openApp(ctx, a.values["agent"])
	if err != nil {
		return err
	}
	defer ap.Close()

	if doSync {
		if err := ap.sync(ctx); err != nil {
			return err
		}
	}
	return fn(ap)
}

func runConnections(ctx context.Context, args []string) error {
	a, err := parseArgs(args, []string{"agent"}, nil)
	if err != nil {
		return err
	}
	return withApp(ctx, a, true, func(ap *app) error {
		conns, err := ap.manager.ListConnections()
		if err != nil {
			return err
		}
		if len(conns) == 0 {
			fmt.Println("No connections.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tTOPIC\tACCOUNT\tNAME\tSTATUS\tLAST ACTIVITY\tUNREAD SINCE")
		for i, c := range conns {
			since, _ := ap.manager.GetLastTimestamp(c.ConnectionTopicID)
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				i+1,
				c.ConnectionTopicID,
				c.TargetAccountID,
				c.DisplayName(),
				c.Status,
				formatTime(c.LastActivity),
				formatNanos(since),
			)
		}
		return w.Flush()
	})
}

func runRequests(ctx context.Context, args []string) error {
	a, err := parseArgs(args, []string{"agent"}, nil)
	if err != nil {
		return err
	}
	return withApp(ctx, a, true, func(ap *app) error {
		pending := ap.session.Tracker.ListPending()
		if len(pending) == 0 {
			fmt.Println("No pending requests.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tTYPE\tCOUNTERPARTY\tREQUEST\tCREATED\tMEMO")
		for _, r := range pending {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				r.UniqueRequestKey,
				r.Type(),
				r.Counterparty(),
				r.RequestID(),
				formatTime(r.Created),
				r.Memo,
			)
		}
		return w.Flush()
	})
}

func runView(ctx context.Context, args []string) error {
	a, err := parseArgs(args, []string{"agent"}, nil)
	if err != nil {
		return err
	}
	if err := a.need(1, "view KEY"); err != nil {
		return err
	}
	return withApp(ctx, a, true, func(ap *app) error {
		req, err := ap.session.Tracker.View(a.positional[0])
		if err != nil {
			return err
		}

		label := color.New(color.FgHiBlack)
		field := func(name, value string) {
			label.Printf("%-14s", name)
			fmt.Println(value)
		}
		field("Key", req.UniqueRequestKey)
		field("Type", string(req.Type()))
		field("Counterparty", req.Counterparty())
		field("Request id", strconv.FormatInt(req.RequestID(), 10))
		field("Topic", req.ProcessingTopicID())
		field("Created", formatTime(req.Created))
		if req.Memo != "" {
			field("Memo", req.Memo)
		}

		profile, err := ap.session.Registry.ProfileOf(ctx, req.Counterparty())
		if err != nil || profile == nil {
			ap.logger.Debug("profile lookup failed", "account_id", req.Counterparty(), "error", err)
			return nil
		}
		if name := profile.Name(); name != "" {
			field("Name", name)
		}
		if profile.Bio != "" {
			field("Bio", profile.Bio)
		}
		if len(profile.Capabilities) > 0 {
			field("Capabilities", joinInts(profile.Capabilities))
		}
		return nil
	})
}

func runReject(ctx context.Context, args []string) error {
	a, err := parseArgs(args, []string{"agent"}, nil)
	if err != nil {
		return err
	}
	if err := a.need(1, "reject KEY"); err != nil {
		return err
	}
	return withApp(ctx, a, true, func(ap *app) error {
		req, err := ap.session.Reject(ctx, a.positional[0])
		if err != nil {
			return err
		}
		color.New(color.FgGreen).Print("✓ ")
		fmt.Printf("Rejected %s request from %s (local only)\n", req.Type(), req.Counterparty())
		return nil
	})
}

func runSend(ctx context.Context, args []string) error {
	a, err := parseArgs(args, []string{"agent", "memo"}, []string{"wait"})
	if err != nil {
		return err
	}
	if err := a.need(2, "send ID TEXT [--wait] [--memo M]"); err != nil {
		return err
	}
	text := strings.Join(a.positional[1:], " ")

	return withApp(ctx, a, false, func(ap *app) error {
		reply, err := ap.session.Send(ctx, a.positional[0], text, messaging.SendOptions{
			ExpectReply: a.switches["wait"],
			Memo:        a.values["memo"],
		})
		if err != nil {
			return err
		}

		color.New(color.FgGreen).Print("✓ ")
		fmt.Printf("Sent as sequence %d (%s)\n", reply.SentSequenceNumber, reply.TransactionID)
		if !a.switches["wait"] {
			return nil
		}
		if !reply.Found {
			color.New(color.FgYellow).Println("No reply yet.")
			return nil
		}
		f := hcs.FormatContent(reply.Content, reply.Message.OperatorID)
		printMessage(reply.Message, f)
		return nil
	})
}

func runCheck(ctx context.Context, args []string) error {
	a, err := parseArgs(args, []string{"agent"}, nil)
	if err != nil {
		return err
	}
	if err := a.need(1, "check ID"); err != nil {
		return err
	}
	return withApp(ctx, a, false, func(ap *app) error {
		res, err := ap.session.Check(ctx, a.positional[0], messaging.CheckOptions{})
		if err != nil {
			return err
		}
		if len(res.Messages) == 0 {
			fmt.Println("No new messages.")
			return nil
		}
		for _, m := range res.Messages {
			printMessage(m.Message, m.Formatted)
		}
		return nil
	})
}

func runPeek(ctx context.Context, args []string) error {
	a, err := parseArgs(args, []string{"agent"}, nil)
	if err != nil {
		return err
	}
	if err := a.need(1, "peek ID [N]"); err != nil {
		return err
	}
	n := 1
	if len(a.positional) > 1 {
		n, err = strconv.Atoi(a.positional[1])
		if err != nil || n < 1 {
			return fmt.Errorf("peek count must be a positive integer, got %q", a.positional[1])
		}
	}
	return withApp(ctx, a, false, func(ap *app) error {
		res, err := ap.session.Check(ctx, a.positional[0], messaging.CheckOptions{FetchLatest: true, LastN: n})
		if err != nil {
			return err
		}
		for _, m := range res.Messages {
			printMessage(m.Message, m.Formatted)
		}
		return nil
	})
}

func runHistory(ctx context.Context, args []string) error {
	a, err := parseArgs(args, []string{"agent"}, nil)
	if err != nil {
		return err
	}
	if err := a.need(1, "history ID"); err != nil {
		return err
	}
	return withApp(ctx, a, false, func(ap *app) error {
		conn, err := ap.session.Registry.Resolve(a.positional[0])
		if err != nil {
			return err
		}
		msgs, err := ap.session.Messages.GetMessages(ctx, conn.ConnectionTopicID)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			printMessage(m.Message, m.Formatted)
		}
		return nil
	})
}

func runMonitor(ctx context.Context, args []string) error {
	a, err := parseArgs(args, []string{"agent", "target", "duration", "interval"}, []string{"accept-all"})
	if err != nil {
		return err
	}
	return withApp(ctx, a, true, func(ap *app) error {
		cfg := monitorConfig(ap.cfg.Monitor)
		if a.switches["accept-all"] {
			cfg.AcceptAll = true
		}
		if t := a.values["target"]; t != "" {
			cfg.TargetAccountID = t
		}
		if d := a.values["duration"]; d != "" {
			if cfg.Duration, err = time.ParseDuration(d); err != nil {
				return fmt.Errorf("parsing --duration: %w", err)
			}
		}
		if d := a.values["interval"]; d != "" {
			if cfg.Interval, err = time.ParseDuration(d); err != nil {
				return fmt.Errorf("parsing --interval: %w", err)
			}
		}

		printBanner(ap.configPath, ap.cfg)

		m, err := ap.session.Monitor(cfg)
		if err != nil {
			return err
		}
		res, err := m.Run(ctx)
		if err != nil {
			return err
		}

		color.New(color.FgGreen).Print("✓ ")
		fmt.Printf("Observed %d request(s), accepted %d\n", res.Observed, res.Accepted)
		return nil
	})
}

func runAgents(ctx context.Context, args []string) error {
	a, err := parseArgs(args, []string{"agent"}, nil)
	if err != nil {
		return err
	}
	return withApp(ctx, a, false, func(ap *app) error {
		agents, err := ap.store.ListAgents(ctx)
		if err != nil {
			return err
		}
		current := ap.session.Agent.AccountID

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\tNAME\tACCOUNT\tINBOUND\tOUTBOUND")
		for _, ag := range agents {
			marker := ""
			if ag.AccountID == current {
				marker = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", marker, ag.Name, ag.AccountID, ag.InboundTopicID, ag.OutboundTopicID)
		}
		return w.Flush()
	})
}

func printMessage(m hcs.Message, f hcs.Formatted) {
	gray := color.New(color.FgHiBlack)
	cyan := color.New(color.FgCyan)

	gray.Printf("[%s #%d] ", formatTime(m.ConsensusAt), m.SequenceNumber)
	sender := f.Sender
	if sender == "" {
		sender = m.OperatorID
	}
	cyan.Print(sender)
	fmt.Printf(": %s\n", f.Text)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func formatNanos(ns int64) string {
	if ns <= 0 {
		return "-"
	}
	return formatTime(time.Unix(0, ns))
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ", ")
}
