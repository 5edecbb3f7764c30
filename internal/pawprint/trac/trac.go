// Package trac implements the proxied read operations on top of a Trac
// server's RPC API.
package trac

import (
	"context"
	"fmt"
	"strings"

	"github.com/csfam/pawprint/internal/common/apperrors"
	"github.com/csfam/pawprint/internal/common/jsonrpc"
	"github.com/csfam/pawprint/internal/pawprint/dispatch"
	"github.com/csfam/pawprint/internal/pawprint/rpcclient"
)

// DefaultTicketQuery selects every ticket ordered by id.
const DefaultTicketQuery = "max=0&order=id"

var ErrUnexpectedResult = apperrors.New("unexpected result from server")

// Endpoints lists the proxied read operations. The name is also the route.
func Endpoints() []dispatch.Endpoint {
	return []dispatch.Endpoint{
		{Name: "ticket/getAll", Operation: GetAllTickets},
		{Name: "ticket/fields", Operation: GetTicketFields},
		{Name: "milestone/getAll", Operation: GetAllMilestones},
		{Name: "component/getAll", Operation: GetAllComponents},
	}
}

// GetAllTickets runs a ticket query, "query" parameter or every ticket by
// default, and fetches the matching tickets in one batch.
func GetAllTickets(ctx context.Context, req dispatch.Request, client rpcclient.Client) (any, error) {
	query := req.Params.Get("query")
	if query == "" {
		query = DefaultTicketQuery
	}
	var ids []int
	if err := client.Call(ctx, "ticket.query", &ids, query); err != nil {
		return nil, err
	}

	calls := make([]jsonrpc.Call, len(ids))
	for i, id := range ids {
		calls[i] = jsonrpc.Call{Method: "ticket.get", Params: []any{id}}
	}
	results, err := client.MultiCall(ctx, calls)
	if err != nil {
		return nil, err
	}

	tickets := make([]Ticket, 0, len(results))
	for _, r := range results {
		var entry []any
		if err := r.Decode(&entry); err != nil {
			return nil, err
		}
		t, err := decodeTicket(entry)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// decodeTicket reads a ticket.get result: [id, created, changed, attributes].
func decodeTicket(entry []any) (Ticket, error) {
	var t Ticket
	if len(entry) != 4 {
		return t, ErrUnexpectedResult.New(fmt.Sprintf("ticket entry has %d elements", len(entry)))
	}
	attrs, ok := entry[3].(map[string]any)
	if !ok {
		return t, ErrUnexpectedResult.New("ticket attributes are not an object")
	}
	input := make(map[string]any, len(attrs)+3)
	for k, v := range attrs {
		if strings.HasPrefix(k, "_") {
			continue
		}
		input[k] = v
	}
	input["id"] = entry[0]
	if _, ok := input["time"]; !ok {
		input["time"] = entry[1]
	}
	if _, ok := input["changetime"]; !ok {
		input["changetime"] = entry[2]
	}
	if err := decode(input, &t); err != nil {
		return t, ErrUnexpectedResult.MsgErr("unable to decode ticket", err)
	}
	return t, nil
}

func GetTicketFields(ctx context.Context, _ dispatch.Request, client rpcclient.Client) (any, error) {
	var raw []map[string]any
	if err := client.Call(ctx, "ticket.getTicketFields", &raw); err != nil {
		return nil, err
	}
	fields := make([]Field, len(raw))
	for i, f := range raw {
		if err := decode(f, &fields[i]); err != nil {
			return nil, ErrUnexpectedResult.MsgErr("unable to decode ticket field", err)
		}
	}
	return fields, nil
}

func GetAllMilestones(ctx context.Context, _ dispatch.Request, client rpcclient.Client) (any, error) {
	out := []Milestone{}
	err := getAllNamed(ctx, client, "ticket.milestone", func(v map[string]any) error {
		var m Milestone
		if err := decode(v, &m); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	return out, err
}

func GetAllComponents(ctx context.Context, _ dispatch.Request, client rpcclient.Client) (any, error) {
	out := []Component{}
	err := getAllNamed(ctx, client, "ticket.component", func(v map[string]any) error {
		var c Component
		if err := decode(v, &c); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

// getAllNamed lists the names of a ticket enumeration (<prefix>.getAll) and
// fetches each one with <prefix>.get in a single batch.
func getAllNamed(ctx context.Context, client rpcclient.Client, prefix string, add func(map[string]any) error) error {
	var names []string
	if err := client.Call(ctx, prefix+".getAll", &names); err != nil {
		return err
	}
	calls := make([]jsonrpc.Call, len(names))
	for i, name := range names {
		calls[i] = jsonrpc.Call{Method: jsonrpc.MethodType(prefix + ".get"), Params: []any{name}}
	}
	results, err := client.MultiCall(ctx, calls)
	if err != nil {
		return err
	}
	for _, r := range results {
		var v map[string]any
		if err := r.Decode(&v); err != nil {
			return err
		}
		if err := add(v); err != nil {
			return ErrUnexpectedResult.MsgErr("unable to decode "+prefix, err)
		}
	}
	return nil
}
