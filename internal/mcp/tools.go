package mcp

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"lorekeeper/internal/entity"
	"lorekeeper/internal/reconcile"
	"lorekeeper/internal/session"
	"lorekeeper/internal/validate"
)

type StartReconciliationInput struct {
	Story string `json:"story" jsonschema:"story identifier"`
	Text  string `json:"text" jsonschema:"story text to extract candidates from"`
}

type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"review session id"`
}

type DecisionInput struct {
	SessionID string `json:"session_id" jsonschema:"review session id"`
	ItemID    string `json:"item_id" jsonschema:"recommendation id"`
}

type ListRecordsInput struct {
	Story string `json:"story" jsonschema:"story identifier"`
	Kind  string `json:"kind,omitempty" jsonschema:"character, world_element, timeline_event or storyboard_scene"`
}

type GetRecordInput struct {
	Story string `json:"story" jsonschema:"story identifier"`
	Kind  string `json:"kind" jsonschema:"character, world_element, timeline_event or storyboard_scene"`
	Name  string `json:"name" jsonschema:"name or title of the record"`
}

type SearchRecordsInput struct {
	Story string `json:"story" jsonschema:"story identifier"`
	Query string `json:"query" jsonschema:"words to look for in record names and text"`
	Kind  string `json:"kind,omitempty" jsonschema:"character, world_element, timeline_event or storyboard_scene"`
}

type ScanInput struct {
	Story string `json:"story" jsonschema:"story identifier"`
}

type ItemOutput struct {
	ID             string                           `json:"id"`
	Action         string                           `json:"action"`
	Kind           string                           `json:"kind"`
	Key            string                           `json:"key"`
	Reason         string                           `json:"reason"`
	Candidate      any                              `json:"candidate"`
	Diff           map[string]reconcile.FieldChange `json:"diff,omitempty"`
	Contradictions []ContradictionOutput            `json:"contradictions,omitempty"`
	State          string                           `json:"state"`
	Failed         bool                             `json:"failed,omitempty"`
	Error          string                           `json:"error,omitempty"`
}

type ContradictionOutput struct {
	Kind         string `json:"kind"`
	CandidateKey string `json:"candidate_key"`
	ExistingKey  string `json:"existing_key"`
	Rule         string `json:"rule"`
	Detail       string `json:"detail"`
	Overlap      int    `json:"overlap,omitempty"`
}

type SessionOutput struct {
	SessionID string                `json:"session_id"`
	Story     string                `json:"story"`
	Summary   string                `json:"summary"`
	Closed    bool                  `json:"closed"`
	Pending   []ItemOutput          `json:"pending"`
	Reports   []ContradictionOutput `json:"reports,omitempty"`
}

type ListPendingOutput struct {
	Items []ItemOutput `json:"items"`
}

type DecisionOutput struct {
	ItemID string `json:"item_id"`
	State  string `json:"state"`
	Error  string `json:"error,omitempty"`
}

type ApplyAllOutput struct {
	Results  []DecisionOutput `json:"results"`
	Approved int              `json:"approved"`
	Failed   int              `json:"failed"`
}

type CancelOutput struct {
	SessionID string `json:"session_id"`
	Cancelled bool   `json:"cancelled"`
}

type RecordOutput struct {
	Kind   string `json:"kind"`
	Key    string `json:"key"`
	Record any    `json:"record"`
}

type ListRecordsOutput struct {
	Records []RecordOutput `json:"records"`
}

type SearchResultOutput struct {
	Kind    string   `json:"kind"`
	Key     string   `json:"key"`
	Name    string   `json:"name"`
	Score   int      `json:"score"`
	Matched []string `json:"matched"`
	Record  any      `json:"record"`
}

type SearchRecordsOutput struct {
	Results []SearchResultOutput `json:"results"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "start_reconciliation",
		Description: "Extract candidates from story text and open a review session",
	}, s.handleStartReconciliation)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_pending",
		Description: "List undecided recommendations of a session",
	}, s.handleListPending)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "approve",
		Description: "Approve one recommendation and write it to the knowledge base",
	}, s.handleApprove)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "reject",
		Description: "Reject one recommendation without writing",
	}, s.handleReject)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "apply_all",
		Description: "Approve every pending recommendation of a session",
	}, s.handleApplyAll)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "cancel_session",
		Description: "Discard the pending queue of a session",
	}, s.handleCancelSession)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_records",
		Description: "List stored records of a story, optionally of one kind",
	}, s.handleListRecords)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_record",
		Description: "Retrieve one stored record by kind and name",
	}, s.handleGetRecord)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "search_records",
		Description: "Search stored records of a story by name and text",
	}, s.handleSearchRecords)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "scan_contradictions",
		Description: "Check every stored record of a story for contradictions",
	}, s.handleScanContradictions)
}

func (s *Server) handleStartReconciliation(ctx context.Context, req *sdk.CallToolRequest, input StartReconciliationInput) (*sdk.CallToolResult, SessionOutput, error) {
	if strings.TrimSpace(input.Story) == "" {
		return nil, SessionOutput{}, fmt.Errorf("story is required")
	}
	if strings.TrimSpace(input.Text) == "" {
		return nil, SessionOutput{}, fmt.Errorf("text is required")
	}
	sess, err := s.sessions.Start(ctx, input.Story, input.Text)
	if err != nil {
		return nil, SessionOutput{}, err
	}
	result := sess.Result()
	return nil, SessionOutput{
		SessionID: sess.ID,
		Story:     sess.StoryID,
		Summary:   result.Summary(),
		Closed:    sess.Closed(),
		Pending:   itemOutputs(sess.Pending()),
		Reports:   contradictionOutputs(result.Reports),
	}, nil
}

func (s *Server) handleListPending(ctx context.Context, req *sdk.CallToolRequest, input SessionInput) (*sdk.CallToolResult, ListPendingOutput, error) {
	items, err := s.sessions.ListPending(input.SessionID)
	if err != nil {
		return nil, ListPendingOutput{}, err
	}
	return nil, ListPendingOutput{Items: itemOutputs(items)}, nil
}

func (s *Server) handleApprove(ctx context.Context, req *sdk.CallToolRequest, input DecisionInput) (*sdk.CallToolResult, DecisionOutput, error) {
	res, err := s.sessions.Approve(ctx, input.SessionID, input.ItemID)
	if err != nil && res.Err == nil {
		return nil, DecisionOutput{}, err
	}
	return nil, decisionOutput(res), nil
}

func (s *Server) handleReject(ctx context.Context, req *sdk.CallToolRequest, input DecisionInput) (*sdk.CallToolResult, DecisionOutput, error) {
	res, err := s.sessions.Reject(input.SessionID, input.ItemID)
	if err != nil {
		return nil, DecisionOutput{}, err
	}
	return nil, decisionOutput(res), nil
}

func (s *Server) handleApplyAll(ctx context.Context, req *sdk.CallToolRequest, input SessionInput) (*sdk.CallToolResult, ApplyAllOutput, error) {
	results, err := s.sessions.ApplyAll(ctx, input.SessionID)
	if err != nil {
		return nil, ApplyAllOutput{}, err
	}
	output := ApplyAllOutput{Results: make([]DecisionOutput, 0, len(results))}
	for _, res := range results {
		if res.Err != nil {
			output.Failed++
		} else {
			output.Approved++
		}
		output.Results = append(output.Results, decisionOutput(res))
	}
	return nil, output, nil
}

func (s *Server) handleCancelSession(ctx context.Context, req *sdk.CallToolRequest, input SessionInput) (*sdk.CallToolResult, CancelOutput, error) {
	if err := s.sessions.Cancel(input.SessionID); err != nil {
		return nil, CancelOutput{}, err
	}
	return nil, CancelOutput{SessionID: input.SessionID, Cancelled: true}, nil
}

func (s *Server) handleListRecords(ctx context.Context, req *sdk.CallToolRequest, input ListRecordsInput) (*sdk.CallToolResult, ListRecordsOutput, error) {
	if strings.TrimSpace(input.Story) == "" {
		return nil, ListRecordsOutput{}, fmt.Errorf("story is required")
	}
	kinds := entity.Kinds
	if input.Kind != "" {
		kind, err := entity.ParseKind(input.Kind)
		if err != nil {
			return nil, ListRecordsOutput{}, err
		}
		kinds = []entity.Kind{kind}
	}

	output := ListRecordsOutput{Records: make([]RecordOutput, 0)}
	for _, kind := range kinds {
		records, err := s.db.List(ctx, input.Story, kind)
		if err != nil {
			return nil, ListRecordsOutput{}, err
		}
		for _, record := range records {
			output.Records = append(output.Records, recordOutput(record))
		}
	}
	return nil, output, nil
}

func (s *Server) handleGetRecord(ctx context.Context, req *sdk.CallToolRequest, input GetRecordInput) (*sdk.CallToolResult, RecordOutput, error) {
	if strings.TrimSpace(input.Story) == "" || strings.TrimSpace(input.Name) == "" {
		return nil, RecordOutput{}, fmt.Errorf("story and name are required")
	}
	kind, err := entity.ParseKind(input.Kind)
	if err != nil {
		return nil, RecordOutput{}, err
	}
	record, err := s.db.Get(ctx, input.Story, kind, entity.NormalizeKey(input.Name))
	if err != nil {
		return nil, RecordOutput{}, err
	}
	if record == nil {
		return nil, RecordOutput{}, fmt.Errorf("%s not found: %s", kind.Label(), input.Name)
	}
	return nil, recordOutput(record), nil
}

func (s *Server) handleSearchRecords(ctx context.Context, req *sdk.CallToolRequest, input SearchRecordsInput) (*sdk.CallToolResult, SearchRecordsOutput, error) {
	if strings.TrimSpace(input.Story) == "" {
		return nil, SearchRecordsOutput{}, fmt.Errorf("story is required")
	}
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchRecordsOutput{}, fmt.Errorf("query is required")
	}
	var kind entity.Kind
	if input.Kind != "" {
		parsed, err := entity.ParseKind(input.Kind)
		if err != nil {
			return nil, SearchRecordsOutput{}, err
		}
		kind = parsed
	}
	results, err := s.db.Search(ctx, input.Story, input.Query, kind)
	if err != nil {
		return nil, SearchRecordsOutput{}, err
	}
	output := make([]SearchResultOutput, 0, len(results))
	for _, result := range results {
		output = append(output, SearchResultOutput{
			Kind:    string(result.Kind),
			Key:     result.Key,
			Name:    result.Name,
			Score:   result.Score,
			Matched: result.Matched,
			Record:  result.Record,
		})
	}
	return nil, SearchRecordsOutput{Results: output}, nil
}

func (s *Server) handleScanContradictions(ctx context.Context, req *sdk.CallToolRequest, input ScanInput) (*sdk.CallToolResult, validate.Report, error) {
	report, err := validate.Run(ctx, input.Story, s.db, s.classifier)
	if err != nil {
		return nil, validate.Report{}, err
	}
	return nil, *report, nil
}

func itemOutputs(items []session.Item) []ItemOutput {
	output := make([]ItemOutput, 0, len(items))
	for _, item := range items {
		rec := item.Recommendation
		out := ItemOutput{
			ID:             item.ID,
			Action:         string(rec.Action),
			Kind:           string(rec.Kind),
			Key:            rec.Key,
			Reason:         rec.Reason,
			Candidate:      rec.Candidate,
			Diff:           rec.Diff,
			Contradictions: contradictionOutputs(rec.Contradictions),
			State:          string(item.State),
			Failed:         item.Failed,
		}
		if item.Err != nil {
			out.Error = item.Err.Error()
		}
		output = append(output, out)
	}
	return output
}

func contradictionOutputs(found []reconcile.Contradiction) []ContradictionOutput {
	if len(found) == 0 {
		return nil
	}
	output := make([]ContradictionOutput, 0, len(found))
	for _, c := range found {
		output = append(output, ContradictionOutput{
			Kind:         string(c.Kind),
			CandidateKey: c.CandidateKey,
			ExistingKey:  c.ExistingKey,
			Rule:         string(c.Rule),
			Detail:       c.Detail,
			Overlap:      c.Overlap,
		})
	}
	return output
}

func decisionOutput(res session.Result) DecisionOutput {
	out := DecisionOutput{ItemID: res.ItemID, State: string(res.State)}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func recordOutput(record entity.Entity) RecordOutput {
	return RecordOutput{
		Kind:   string(record.Kind()),
		Key:    entity.Key(record),
		Record: record,
	}
}
