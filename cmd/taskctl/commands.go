package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	cli "github.com/urfave/cli/v3"

	"github.com/secops-portal/backend/internal/client"
	"github.com/secops-portal/backend/internal/config"
	"github.com/secops-portal/backend/internal/models"
	"github.com/secops-portal/backend/internal/service"
)

type app struct {
	logger zerolog.Logger
	out    io.Writer
	tasks  *service.TaskService
	rules  *service.RoutingService
}

func newCommand(cfg config.ClientConfig, logger zerolog.Logger, out io.Writer) *cli.Command {
	a := &app{logger: logger, out: out}

	return &cli.Command{
		Name:                  "taskctl",
		Usage:                 "Work the security-services request queues from the command line",
		EnableShellCompletion: true,
		Writer:                out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api", Usage: "API base URL including /api", Value: cfg.APIURL},
			&cli.StringFlag{Name: "admin-key", Usage: "Admin key for routing rule changes", Value: cfg.AdminKey},
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Acting agent id", Value: cfg.User},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			a.connect(cmd.String("api"), cmd.String("admin-key"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:   "queues",
				Usage:  "Show the four task queues of the acting agent",
				Action: a.queues,
			},
			{
				Name:      "show",
				Usage:     "Show a request",
				ArgsUsage: "<request-id>",
				Action:    a.show,
			},
			{
				Name:      "history",
				Usage:     "Show the status history of a request",
				ArgsUsage: "<request-id>",
				Action:    a.history,
			},
			{
				Name:      "claim",
				Usage:     "Claim a request",
				ArgsUsage: "<request-id>",
				Action:    a.claim,
			},
			{
				Name:      "auto-assign",
				Usage:     "Route a request to the next available agent",
				ArgsUsage: "<request-id>",
				Action:    a.autoAssign,
			},
			{
				Name:      "status",
				Usage:     "Move a request to another status",
				ArgsUsage: "<request-id> <status>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "details", Usage: "Audit note for the transition"},
					&cli.StringFlag{Name: "assign-to", Usage: "Assignee when moving to assigned"},
				},
				Action: a.status,
			},
			{
				Name:      "submit",
				Usage:     "Submit a response and complete the request",
				ArgsUsage: "<request-id> <response>",
				Action:    a.submit,
			},
			{
				Name:      "send-back",
				Usage:     "Send a request back to its requestor",
				ArgsUsage: "<request-id> <reason>",
				Action:    a.sendBack,
			},
			{
				Name:      "auto-return",
				Usage:     "Return a request to the queue",
				ArgsUsage: "<request-id>",
				Action:    a.autoReturn,
			},
			{
				Name:      "edit",
				Usage:     "Edit request fields",
				ArgsUsage: "<request-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title"},
					&cli.StringFlag{Name: "description"},
					&cli.StringSliceFlag{Name: "data", Usage: "key=value, value parsed as JSON when possible"},
				},
				Action: a.edit,
			},
			{
				Name:  "rules",
				Usage: "Manage routing rules",
				Commands: []*cli.Command{
					{Name: "list", Usage: "List routing rules", Action: a.rulesList},
					{Name: "get", ArgsUsage: "<service-type>", Usage: "Show a routing rule", Action: a.rulesGet},
					{
						Name:      "save",
						ArgsUsage: "<service-type>",
						Usage:     "Create or replace a routing rule",
						Flags: []cli.Flag{
							&cli.StringSliceFlag{Name: "users", Usage: "Assigned agent ids"},
							&cli.BoolFlag{Name: "active", Value: true},
							&cli.BoolFlag{Name: "auto-assign"},
							&cli.StringFlag{Name: "strategy", Value: models.StrategyRoundRobin},
						},
						Action: a.rulesSave,
					},
					{Name: "delete", ArgsUsage: "<service-type>", Usage: "Delete a routing rule", Action: a.rulesDelete},
					{Name: "next-agent", ArgsUsage: "<service-type>", Usage: "Pick the next agent for a service type", Action: a.rulesNext},
				},
			},
		},
	}
}

func (a *app) connect(apiURL, adminKey string) {
	c := client.New(apiURL, adminKey)
	a.rules = &service.RoutingService{Backend: c, Logger: a.logger}
	a.tasks = &service.TaskService{Backend: c, Rules: a.rules, Logger: a.logger}
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// operatorError prints as the message shown to the operator while keeping
// the cause reachable through errors.Is.
type operatorError struct {
	err error
}

func (e operatorError) Error() string { return service.ErrorMessage(e.err) }

func (e operatorError) Unwrap() error { return e.err }

func fail(err error) error {
	return operatorError{err: err}
}

func args(cmd *cli.Command, n int) ([]string, error) {
	got := cmd.Args().Slice()
	if len(got) < n {
		return nil, fmt.Errorf("expected %d argument(s): %s", n, cmd.ArgsUsage)
	}
	return got, nil
}

func (a *app) queues(ctx context.Context, cmd *cli.Command) error {
	queues, err := a.tasks.FetchRequests(ctx, cmd.String("user"))
	if err != nil {
		return fail(err)
	}
	return a.print(queues)
}

func (a *app) show(ctx context.Context, cmd *cli.Command) error {
	v, err := args(cmd, 1)
	if err != nil {
		return err
	}
	req, err := a.tasks.GetRequest(ctx, v[0])
	if err != nil {
		return fail(err)
	}
	return a.print(req)
}

func (a *app) history(ctx context.Context, cmd *cli.Command) error {
	v, err := args(cmd, 1)
	if err != nil {
		return err
	}
	entries, err := a.tasks.History(ctx, v[0])
	if err != nil {
		return fail(err)
	}
	return a.print(entries)
}

func (a *app) claim(ctx context.Context, cmd *cli.Command) error {
	v, err := args(cmd, 1)
	if err != nil {
		return err
	}
	req, err := a.tasks.ClaimRequest(ctx, v[0], cmd.String("user"))
	if err != nil {
		return fail(err)
	}
	return a.print(req)
}

func (a *app) autoAssign(ctx context.Context, cmd *cli.Command) error {
	v, err := args(cmd, 1)
	if err != nil {
		return err
	}
	req, err := a.tasks.AutoAssignRequest(ctx, v[0], cmd.String("user"))
	if err != nil {
		return fail(err)
	}
	return a.print(req)
}

func (a *app) status(ctx context.Context, cmd *cli.Command) error {
	v, err := args(cmd, 2)
	if err != nil {
		return err
	}
	status, err := models.ParseStatus(v[1])
	if err != nil {
		return fail(err)
	}
	extra := models.StatusExtra{Details: cmd.String("details")}
	if to := cmd.String("assign-to"); to != "" {
		extra.AssignedTo = &to
	}
	req, err := a.tasks.UpdateStatus(ctx, v[0], status, cmd.String("user"), extra)
	if err != nil {
		return fail(err)
	}
	return a.print(req)
}

func (a *app) submit(ctx context.Context, cmd *cli.Command) error {
	v, err := args(cmd, 2)
	if err != nil {
		return err
	}
	req, err := a.tasks.SubmitResponse(ctx, v[0], strings.Join(v[1:], " "), cmd.String("user"))
	if err != nil {
		return fail(err)
	}
	return a.print(req)
}

func (a *app) sendBack(ctx context.Context, cmd *cli.Command) error {
	v, err := args(cmd, 2)
	if err != nil {
		return err
	}
	req, err := a.tasks.SendBackToRequestor(ctx, v[0], strings.Join(v[1:], " "), cmd.String("user"))
	if err != nil {
		return fail(err)
	}
	return a.print(req)
}

func (a *app) autoReturn(ctx context.Context, cmd *cli.Command) error {
	v, err := args(cmd, 1)
	if err != nil {
		return err
	}
	req, err := a.tasks.AutoReturnTask(ctx, v[0], cmd.String("user"))
	if err != nil {
		return fail(err)
	}
	return a.print(req)
}

func (a *app) edit(ctx context.Context, cmd *cli.Command) error {
	v, err := args(cmd, 1)
	if err != nil {
		return err
	}
	var fields models.RequestFields
	if cmd.IsSet("title") {
		title := cmd.String("title")
		fields.Title = &title
	}
	if cmd.IsSet("description") {
		desc := cmd.String("description")
		fields.Description = &desc
	}
	data, err := parseData(cmd.StringSlice("data"))
	if err != nil {
		return err
	}
	fields.Data = data

	req, err := a.tasks.SaveEditedRequest(ctx, v[0], fields, cmd.String("user"))
	if err != nil {
		return fail(err)
	}
	return a.print(req)
}

func parseData(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, raw, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, errors.New("data must be key=value: " + p)
		}
		var val any
		if err := json.Unmarshal([]byte(raw), &val); err != nil {
			val = raw
		}
		out[strings.TrimSpace(k)] = val
	}
	return out, nil
}

func (a *app) rulesList(ctx context.Context, cmd *cli.Command) error {
	rules, err := a.rules.GetRoutingRules(ctx)
	if err != nil {
		return fail(err)
	}
	return a.print(rules)
}

func (a *app) rulesGet(ctx context.Context, cmd *cli.Command) error {
	v, err := args(cmd, 1)
	if err != nil {
		return err
	}
	rule, err := a.rules.GetRoutingRuleByServiceType(ctx, v[0])
	if err != nil {
		return fail(err)
	}
	return a.print(rule)
}

func (a *app) rulesSave(ctx context.Context, cmd *cli.Command) error {
	v, err := args(cmd, 1)
	if err != nil {
		return err
	}
	saved, err := a.rules.SaveRoutingRule(ctx, models.RoutingRule{
		ServiceType:   v[0],
		IsActive:      cmd.Bool("active"),
		AutoAssign:    cmd.Bool("auto-assign"),
		AssignedUsers: cmd.StringSlice("users"),
		Strategy:      cmd.String("strategy"),
	})
	if err != nil {
		return fail(err)
	}
	return a.print(saved)
}

func (a *app) rulesDelete(ctx context.Context, cmd *cli.Command) error {
	v, err := args(cmd, 1)
	if err != nil {
		return err
	}
	if err := a.rules.DeleteRoutingRule(ctx, v[0]); err != nil {
		return fail(err)
	}
	return a.print(map[string]any{"service_type": v[0], "deleted": true})
}

func (a *app) rulesNext(ctx context.Context, cmd *cli.Command) error {
	v, err := args(cmd, 1)
	if err != nil {
		return err
	}
	agentID, ok, err := a.rules.GetNextAvailableAgent(ctx, v[0])
	if err != nil {
		return fail(err)
	}
	if !ok {
		return fail(models.ErrNoAvailableAgent)
	}
	return a.print(map[string]string{"agent_id": agentID})
}
