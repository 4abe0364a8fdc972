package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ecsf-gov/sage/internal/actions"
	"github.com/ecsf-gov/sage/internal/genai"
	"github.com/ecsf-gov/sage/internal/models"
	"github.com/ecsf-gov/sage/internal/store"
	"github.com/ecsf-gov/sage/internal/util"
)

// ErrConversationNotFound is returned for action events on unknown conversations.
var ErrConversationNotFound = errors.New("conversation not found")

// Action card identifiers the engine emits.
const (
	actionCreateRecords = "create_records"
	actionAutoResolve   = "auto_resolve"
)

// Config carries the engine's tunables.
type Config struct {
	// UseAI enables gateway-backed classification, extraction, and reply
	// generation. With it off the engine runs fully scripted.
	UseAI bool
	// HistoryWindow is how many transcript turns the gateway sees.
	HistoryWindow int
}

// Engine drives conversations through the scripted flows. One engine serves
// every conversation; all per-conversation state lives in the context store.
type Engine struct {
	store      store.Store
	gateway    genai.ClientInterface
	catalog    *Catalog
	classifier *Classifier
	extractor  *Extractor
	executor   *actions.Executor
	cfg        Config
}

// NewEngine creates an engine. gateway may be nil; the engine then runs in
// fully scripted mode regardless of cfg.UseAI.
func NewEngine(st store.Store, gateway genai.ClientInterface, executor *actions.Executor, cfg Config) *Engine {
	if gateway == nil {
		cfg.UseAI = false
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	return &Engine{
		store:      st,
		gateway:    gateway,
		catalog:    NewCatalog(),
		classifier: NewClassifier(gateway, cfg.UseAI),
		extractor:  NewExtractor(gateway, cfg.UseAI),
		executor:   executor,
		cfg:        cfg,
	}
}

// Catalog exposes the flow catalog, mainly so callers can register flows.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// StartConversation opens a conversation and returns the greeting. An empty
// conversationID gets a generated one.
func (e *Engine) StartConversation(ctx context.Context, conversationID string) (*models.EngineResponse, error) {
	if conversationID == "" {
		conversationID = util.GenerateConversationID()
	}
	conv := models.NewConversation(conversationID)
	def := e.catalog.Flow(models.IntentGeneral)
	welcome := def.Steps[0]

	conv.AddMessage("assistant", welcome.Content)
	resp := e.respond(conv, def)
	resp.Message = welcome.Content
	resp.Choices = welcome.Choices

	if err := e.save(conv); err != nil {
		return e.saveFailure(conv, def), nil
	}
	e.logTurn(conv, "assistant", welcome.Content)
	slog.Info("Engine.StartConversation: conversation started", "conversationID", conversationID)
	return resp, nil
}

// ProcessMessage handles a free-text message event.
func (e *Engine) ProcessMessage(ctx context.Context, conversationID, message string) (*models.EngineResponse, error) {
	if conversationID == "" {
		return nil, models.ErrEmptyConversationID
	}
	if strings.TrimSpace(message) == "" {
		return nil, models.ErrEmptyMessage
	}

	conv, err := e.load(conversationID)
	if err != nil {
		return nil, err
	}
	if conv.State == models.StateCompleted {
		// A completed conversation starts fresh on the next message.
		conv = models.NewConversation(conversationID)
	}

	conv.TurnCount++
	conv.AddMessage("user", message)
	e.logTurn(conv, "user", message)

	if conv.Intent == "" {
		result := e.classifier.Classify(ctx, message)
		conv.Intent = result.Intent
		conv.Confidence = result.Confidence
		slog.Debug("Engine.ProcessMessage: intent classified", "conversationID", conversationID, "intent", result.Intent, "confidence", result.Confidence, "source", result.Source)
	} else if conv.Intent == models.IntentGeneral {
		// The general menu keeps listening for a real intent.
		result := e.classifier.Classify(ctx, message)
		if result.Intent != models.IntentGeneral {
			conv.Intent = result.Intent
			conv.Confidence = result.Confidence
			conv.CurrentStep = 0
			conv.CompletedSteps = []int{}
			conv.FlowStarted = false
			slog.Debug("Engine.ProcessMessage: intent reclassified", "conversationID", conversationID, "intent", result.Intent)
		}
	}

	def := e.catalog.Flow(conv.Intent)
	var resp *models.EngineResponse
	if !conv.FlowStarted {
		resp = e.beginFlow(conv, def)
	} else {
		resp = e.processStep(ctx, conv, def, message)
	}

	conv.AddMessage("assistant", resp.Message)
	if err := e.save(conv); err != nil {
		return e.saveFailure(conv, def), nil
	}
	e.logTurn(conv, "assistant", resp.Message)
	return resp, nil
}

// ProcessChoice handles a button selection event.
func (e *Engine) ProcessChoice(ctx context.Context, conversationID, choice string) (*models.EngineResponse, error) {
	if conversationID == "" {
		return nil, models.ErrEmptyConversationID
	}
	if choice == "" {
		return nil, models.ErrEmptyChoice
	}

	conv, err := e.load(conversationID)
	if err != nil {
		return nil, err
	}

	conv.TurnCount++
	conv.AddMessage("user", "Selected: "+choice)
	e.logTurn(conv, "user", "Selected: "+choice)

	def := e.catalog.Flow(conv.Intent)
	var resp *models.EngineResponse
	switch choice {
	case models.ChoiceStartOver:
		resp = e.startOver(conv)
		def = e.catalog.Flow(conv.Intent)
	case models.ChoiceEndConversation:
		conv.State = models.StateCompleted
		if conv.Outcome == "" {
			conv.Outcome = models.OutcomeAbandoned
		}
		resp = e.respond(conv, def)
		resp.Message = "Alright, I'll close this out. Come back any time."
	default:
		resp, def = e.applyChoice(ctx, conv, def, choice)
	}

	conv.AddMessage("assistant", resp.Message)
	if err := e.save(conv); err != nil {
		return e.saveFailure(conv, def), nil
	}
	e.logTurn(conv, "assistant", resp.Message)
	return resp, nil
}

// ProcessAction handles an action card confirmation event.
func (e *Engine) ProcessAction(ctx context.Context, conversationID, actionID string, confirmed bool) (*models.EngineResponse, error) {
	if conversationID == "" {
		return nil, models.ErrEmptyConversationID
	}
	if actionID == "" {
		return nil, models.ErrEmptyActionID
	}

	conv, err := e.load(conversationID)
	if err != nil {
		return nil, err
	}
	if conv.TurnCount == 0 && !conv.FlowStarted {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}

	conv.TurnCount++
	verdict := "declined"
	if confirmed {
		verdict = "confirmed"
	}
	conv.AddMessage("user", fmt.Sprintf("Action %s %s", actionID, verdict))
	e.logTurn(conv, "user", fmt.Sprintf("Action %s %s", actionID, verdict))

	def := e.catalog.Flow(conv.Intent)
	var resp *models.EngineResponse
	switch {
	case actionID == actionAutoResolve:
		resp = e.handleAutoResolve(ctx, conv, def, confirmed)
	case !confirmed:
		if conv.State == models.StateAwaitingInput {
			conv.State = models.StateActive
		}
		resp = e.respond(conv, def)
		resp.Message = "No problem, nothing was created. What would you like to do instead?"
		resp.Choices = []models.Choice{
			{Label: "Start over", Value: models.ChoiceStartOver},
			{Label: "No thanks", Value: models.ChoiceEndConversation},
		}
	default:
		resp = e.executeActions(ctx, conv, def)
	}

	conv.AddMessage("assistant", resp.Message)
	if err := e.save(conv); err != nil {
		return e.saveFailure(conv, def), nil
	}
	e.logTurn(conv, "assistant", resp.Message)
	return resp, nil
}

// Reset wipes a conversation back to the greeting.
func (e *Engine) Reset(ctx context.Context, conversationID string) (*models.EngineResponse, error) {
	if conversationID == "" {
		return nil, models.ErrEmptyConversationID
	}
	if err := e.store.DeleteContext(conversationID); err != nil {
		return nil, fmt.Errorf("failed to reset conversation %s: %w", conversationID, err)
	}
	return e.StartConversation(ctx, conversationID)
}

// load fetches a context or initializes a fresh one.
func (e *Engine) load(conversationID string) (*models.Conversation, error) {
	conv, err := e.store.GetContext(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	if conv == nil {
		conv = models.NewConversation(conversationID)
	}
	if conv.CollectedData == nil {
		conv.CollectedData = map[string]string{}
	}
	return conv, nil
}

func (e *Engine) save(conv *models.Conversation) error {
	updates, err := conv.Updates()
	if err != nil {
		return err
	}
	if err := e.store.UpdateContext(conv.ID, updates); err != nil {
		slog.Error("Engine.save: context save failed", "conversationID", conv.ID, "error", err)
		return err
	}
	return nil
}

// saveFailure builds the response for a failed persistence attempt. Durable
// state is untouched, so the flow does not advance.
func (e *Engine) saveFailure(conv *models.Conversation, def *models.FlowDefinition) *models.EngineResponse {
	resp := e.respond(conv, def)
	resp.Message = "I couldn't save that. Please try again."
	resp.Error = true
	return resp
}

func (e *Engine) logTurn(conv *models.Conversation, role, content string) {
	if err := e.store.LogMessage(conv.ID, conv.TurnCount, role, content); err != nil {
		slog.Warn("Engine.logTurn: message log failed", "conversationID", conv.ID, "error", err)
	}
}

// respond builds the response scaffold with flow progress attached.
func (e *Engine) respond(conv *models.Conversation, def *models.FlowDefinition) *models.EngineResponse {
	return &models.EngineResponse{
		ConversationID: conv.ID,
		Flow: models.FlowInfo{
			Intent:         conv.Intent,
			CurrentStep:    conv.CurrentStep,
			TotalSteps:     len(def.Steps),
			CompletedSteps: conv.CompletedSteps,
		},
		CollectedData: conv.CollectedData,
		ActiveRecords: conv.ActiveRecords,
	}
}

// beginFlow presents the flow welcome plus the first interactive step.
func (e *Engine) beginFlow(conv *models.Conversation, def *models.FlowDefinition) *models.EngineResponse {
	conv.FlowStarted = true
	welcome := def.Steps[0]

	if len(def.Steps) == 1 {
		// The general flow is a single menu step.
		resp := e.respond(conv, def)
		resp.Message = welcome.Content
		resp.Choices = welcome.Choices
		return resp
	}

	// The welcome turn previews the first real step but the pointer stays
	// at 0 with nothing completed; it advances once the user answers.
	next := def.Steps[1]
	conv.MissingFields = MissingFields(next, conv.CollectedData)

	resp := e.respond(conv, def)
	resp.Message = welcome.Content + "\n\n" + stepPrompt(next)
	resp.Choices = next.Choices
	slog.Debug("Engine.beginFlow: flow started", "conversationID", conv.ID, "intent", conv.Intent, "currentStep", conv.CurrentStep)
	return resp
}

// processStep routes a free-text message into the current step.
func (e *Engine) processStep(ctx context.Context, conv *models.Conversation, def *models.FlowDefinition, message string) *models.EngineResponse {
	if conv.CurrentStep >= len(def.Steps) {
		return e.completeFlow(conv, def)
	}
	step := def.Steps[conv.CurrentStep]

	switch step.Type {
	case models.StepDataCollection:
		e.extractor.Extract(ctx, step, message, conv.CollectedData)
		missing := MissingFields(step, conv.CollectedData)
		conv.MissingFields = missing
		if len(missing) == 0 {
			e.completeStep(conv, conv.CurrentStep)
			return e.enterStep(ctx, conv, def)
		}
		return e.askMissing(ctx, conv, def, step, message)

	case models.StepChoice:
		if value, ok := matchChoice(step, message); ok {
			return e.storeChoice(ctx, conv, def, step, value)
		}
		resp := e.respond(conv, def)
		resp.Message = step.Content
		resp.Choices = step.Choices
		return resp

	case models.StepConfirmation:
		if isAffirmative(message) {
			return e.executeActions(ctx, conv, def)
		}
		if isNegative(message) {
			resp := e.respond(conv, def)
			resp.Message = "No problem, nothing was created. What would you like to do instead?"
			resp.Choices = []models.Choice{
				{Label: "Start over", Value: models.ChoiceStartOver},
				{Label: "No thanks", Value: models.ChoiceEndConversation},
			}
			return resp
		}
		return e.confirmationResponse(conv, def, step)

	case models.StepWelcome:
		if len(def.Steps) == 1 {
			resp := e.respond(conv, def)
			resp.Message = step.Content
			resp.Choices = step.Choices
			return resp
		}
		// The answer to the welcome turn belongs to the step after it.
		e.completeStep(conv, conv.CurrentStep)
		return e.processStep(ctx, conv, def, message)

	default:
		return e.enterStep(ctx, conv, def)
	}
}

// enterStep produces the response for whatever step the conversation now
// points at, running entry behavior for passive step types.
func (e *Engine) enterStep(ctx context.Context, conv *models.Conversation, def *models.FlowDefinition) *models.EngineResponse {
	for {
		if conv.CurrentStep >= len(def.Steps) {
			return e.completeFlow(conv, def)
		}
		step := def.Steps[conv.CurrentStep]

		switch step.Type {
		case models.StepKnownIssueCheck:
			if resp := e.checkKnownIssue(ctx, conv, def); resp != nil {
				return resp
			}
			// No match; fall through to the next step.
			e.completeStep(conv, conv.CurrentStep)

		case models.StepConfirmation:
			return e.confirmationResponse(conv, def, step)

		case models.StepActionExecution:
			// Never run actions without an explicit confirmation.
			return e.confirmationResponse(conv, def, step)

		case models.StepSummary:
			return e.completeFlow(conv, def)

		case models.StepWelcome:
			e.completeStep(conv, conv.CurrentStep)

		default:
			conv.MissingFields = MissingFields(step, conv.CollectedData)
			resp := e.respond(conv, def)
			resp.Message = stepPrompt(step)
			resp.Choices = step.Choices
			return resp
		}
	}
}

// askMissing asks for the next missing field, preferring a gateway-generated
// reply and falling back to the scripted prompt.
func (e *Engine) askMissing(ctx context.Context, conv *models.Conversation, def *models.FlowDefinition, step models.Step, message string) *models.EngineResponse {
	missing := conv.MissingFields
	resp := e.respond(conv, def)

	if e.cfg.UseAI {
		system := BuildSystemPrompt(def, step, conv.CollectedData, missing)
		// The inbound message is already in the transcript; the gateway
		// appends it separately, so exclude it from the windowed history.
		history := conv.History
		if n := len(history); n > 0 && history[n-1].Role == "user" {
			history = history[:n-1]
		}
		reply, err := e.gateway.Generate(ctx, system, message, WindowHistory(history, e.cfg.HistoryWindow))
		if err == nil {
			var parsed aiReply
			if jsonErr := json.Unmarshal([]byte(genai.ExtractJSONObject(reply)), &parsed); jsonErr == nil && parsed.Message != "" {
				resp.Message = parsed.Message
				if parsed.FlowSignal == signalComplete && len(missing) == 0 {
					e.completeStep(conv, conv.CurrentStep)
					return e.enterStep(ctx, conv, def)
				}
				return resp
			}
			if text := strings.TrimSpace(reply); text != "" {
				resp.Message = text
				return resp
			}
		}
		slog.Debug("Engine.askMissing: gateway generation unavailable, using scripted prompt", "conversationID", conv.ID, "error", err)
	}

	next := missing[0]
	if spec, ok := fieldSpec(step, next); ok && spec.Prompt != "" {
		resp.Message = spec.Prompt
		resp.Choices = spec.Choices
	} else {
		resp.Message = fmt.Sprintf("Could you give me the %s?", strings.ReplaceAll(next, "_", " "))
	}
	return resp
}

// applyChoice handles a non-reserved choice value.
func (e *Engine) applyChoice(ctx context.Context, conv *models.Conversation, def *models.FlowDefinition, choice string) (*models.EngineResponse, *models.FlowDefinition) {
	// Intent selection happens before a flow starts.
	if !conv.FlowStarted || conv.Intent == "" || (conv.Intent == models.IntentGeneral && len(def.Steps) == 1) {
		intent, known := models.LookupIntent(choice)
		confidence := 1.0
		if !known {
			// Unrecognized values run through the classifier as raw text.
			result := e.classifier.Classify(ctx, choice)
			intent = result.Intent
			confidence = result.Confidence
		}
		conv.Intent = intent
		conv.Confidence = confidence
		conv.CurrentStep = 0
		conv.CompletedSteps = []int{}
		conv.FlowStarted = false
		def = e.catalog.Flow(intent)
		slog.Debug("Engine.applyChoice: intent selected", "conversationID", conv.ID, "intent", intent)
		return e.beginFlow(conv, def), def
	}

	if conv.CurrentStep >= len(def.Steps) {
		return e.completeFlow(conv, def), def
	}
	step := def.Steps[conv.CurrentStep]
	if step.Type == models.StepWelcome && len(def.Steps) > 1 {
		e.completeStep(conv, conv.CurrentStep)
		step = def.Steps[conv.CurrentStep]
	}

	switch step.Type {
	case models.StepConditionalRouting:
		if target, ok := step.Routing[choice]; ok {
			e.completeStep(conv, conv.CurrentStep)
			conv.CurrentStep = target
			conv.LastChoice = choice
			return e.enterStep(ctx, conv, def), def
		}
		resp := e.respond(conv, def)
		resp.Message = step.Content
		resp.Choices = step.Choices
		return resp, def

	case models.StepChoice:
		if !validChoice(step, choice) {
			resp := e.respond(conv, def)
			resp.Message = step.Content
			resp.Choices = step.Choices
			return resp, def
		}
		return e.storeChoice(ctx, conv, def, step, choice), def

	case models.StepConfirmation:
		if choice == "confirm" || choice == "yes" {
			return e.executeActions(ctx, conv, def), def
		}
		if choice == "edit" || choice == "restart" {
			return e.restartFlow(conv, def), def
		}
		return e.confirmationResponse(conv, def, step), def

	default:
		conv.LastChoice = choice
		resp := e.respond(conv, def)
		resp.Message = stepPrompt(step)
		resp.Choices = step.Choices
		return resp, def
	}
}

// storeChoice records a choice-step selection and advances.
func (e *Engine) storeChoice(ctx context.Context, conv *models.Conversation, def *models.FlowDefinition, step models.Step, value string) *models.EngineResponse {
	if step.Field != "" {
		conv.CollectedData[step.Field] = value
	}
	conv.LastChoice = value
	e.completeStep(conv, conv.CurrentStep)
	return e.enterStep(ctx, conv, def)
}

// checkKnownIssue returns the auto-resolve card when a known issue matches,
// or nil when the flow should continue.
func (e *Engine) checkKnownIssue(ctx context.Context, conv *models.Conversation, def *models.FlowDefinition) *models.EngineResponse {
	issues, err := e.store.ListKnownIssues()
	if err != nil {
		slog.Warn("Engine.checkKnownIssue: known-issue lookup failed", "conversationID", conv.ID, "error", err)
		return nil
	}
	category := conv.CollectedData["category"]
	if category == "" {
		category = conv.CollectedData["issue_category"]
	}
	match := MatchKnownIssue(issues, category, conv.CollectedData["issue_description"])
	if match == nil {
		return nil
	}

	conv.MatchedIssueID = match.ID
	conv.State = models.StateAwaitingInput
	resp := e.respond(conv, def)
	resp.Message = fmt.Sprintf("This looks like a known issue: %s. Try this before we raise a ticket:\n\n%s", match.Title, match.Resolution)
	resp.ActionCard = &models.ActionCard{
		ActionID:    actionAutoResolve,
		Title:       match.Title,
		Description: match.Resolution,
		ConfirmText: "That fixed it",
		CancelText:  "Still broken",
	}
	slog.Info("Engine.checkKnownIssue: known issue matched", "conversationID", conv.ID, "issueID", match.ID)
	return resp
}

// handleAutoResolve closes the conversation when the known fix worked, or
// resumes the flow when it did not.
func (e *Engine) handleAutoResolve(ctx context.Context, conv *models.Conversation, def *models.FlowDefinition, confirmed bool) *models.EngineResponse {
	if confirmed {
		if conv.MatchedIssueID != "" {
			if err := e.store.IncrementKnownIssueHits(conv.MatchedIssueID); err != nil {
				slog.Warn("Engine.handleAutoResolve: hit count update failed", "issueID", conv.MatchedIssueID, "error", err)
			}
		}
		conv.State = models.StateCompleted
		conv.Outcome = models.OutcomeResolved
		resp := e.respond(conv, def)
		resp.Message = "Glad that sorted it! I'll close this out. Come back if it flares up again."
		return resp
	}

	// Fix didn't help; resume collecting for the incident.
	conv.State = models.StateActive
	if conv.CurrentStep < len(def.Steps) && def.Steps[conv.CurrentStep].Type == models.StepKnownIssueCheck {
		e.completeStep(conv, conv.CurrentStep)
	}
	return e.enterStep(ctx, conv, def)
}

// confirmationResponse presents the pre-action summary card.
func (e *Engine) confirmationResponse(conv *models.Conversation, def *models.FlowDefinition, step models.Step) *models.EngineResponse {
	conv.State = models.StateAwaitingInput
	content := step.Content
	if step.Type != models.StepConfirmation {
		content = "Ready to create the records?"
	}

	items := make([]models.ActionCardItem, 0, len(conv.CollectedData))
	for _, k := range sortedKeys(conv.CollectedData) {
		items = append(items, models.ActionCardItem{Label: strings.ReplaceAll(k, "_", " "), Value: conv.CollectedData[k], Success: true})
	}

	resp := e.respond(conv, def)
	resp.Message = content
	resp.ActionCard = &models.ActionCard{
		ActionID:    actionCreateRecords,
		Title:       def.Title,
		Description: content,
		Items:       items,
		ConfirmText: "Create records",
		CancelText:  "Not yet",
	}
	return resp
}

// executeActions runs the flow's action step and completes the flow.
func (e *Engine) executeActions(ctx context.Context, conv *models.Conversation, def *models.FlowDefinition) *models.EngineResponse {
	actionIdx := -1
	for i := conv.CurrentStep; i < len(def.Steps); i++ {
		if def.Steps[i].Type == models.StepActionExecution {
			actionIdx = i
			break
		}
	}
	if actionIdx == -1 {
		resp := e.respond(conv, def)
		resp.Message = "There's nothing left to create for this request."
		return resp
	}

	results := e.executor.Execute(ctx, def.Steps[actionIdx].Actions, conv.CollectedData)
	items := make([]models.ActionCardItem, 0, len(results))
	for _, r := range results {
		item := models.ActionCardItem{Label: r.Title, Success: r.Success, Error: r.Error}
		if r.Record != nil {
			item.Value = r.Record.Number
			conv.ActiveRecords = append(conv.ActiveRecords, *r.Record)
		}
		items = append(items, item)
	}

	for i := conv.CurrentStep; i <= actionIdx; i++ {
		e.completeStep(conv, i)
	}
	conv.State = models.StateCompleted
	conv.Outcome = models.OutcomeSubmitted

	message := "All set. Here's what I created for you."
	if summary := summaryStep(def, actionIdx); summary != nil {
		message = summary.Content
		e.completeStep(conv, conv.CurrentStep)
	}

	resp := e.respond(conv, def)
	resp.Message = message
	resp.ActionCard = &models.ActionCard{
		ActionID: actionCreateRecords,
		Title:    def.Title,
		Items:    items,
	}
	slog.Info("Engine.executeActions: flow completed", "conversationID", conv.ID, "intent", conv.Intent, "records", len(conv.ActiveRecords))
	return resp
}

// completeFlow closes out a flow that ran past its last interactive step.
func (e *Engine) completeFlow(conv *models.Conversation, def *models.FlowDefinition) *models.EngineResponse {
	if conv.State != models.StateCompleted {
		conv.State = models.StateCompleted
		if conv.Outcome == "" {
			conv.Outcome = models.OutcomeResolved
		}
	}
	if conv.CurrentStep < len(def.Steps) {
		e.completeStep(conv, conv.CurrentStep)
	}

	message := "That's everything for this request."
	if len(def.Steps) > 0 {
		if last := def.Steps[len(def.Steps)-1]; last.Type == models.StepSummary {
			message = last.Content
		}
	}
	resp := e.respond(conv, def)
	resp.Message = message
	resp.Choices = []models.Choice{
		{Label: "Start over", Value: models.ChoiceStartOver},
		{Label: "No thanks", Value: models.ChoiceEndConversation},
	}
	return resp
}

// startOver wipes flow progress but keeps the transcript and any records
// already created.
func (e *Engine) startOver(conv *models.Conversation) *models.EngineResponse {
	conv.Intent = ""
	conv.Confidence = 0
	conv.CurrentStep = 0
	conv.CompletedSteps = []int{}
	conv.CollectedData = map[string]string{}
	conv.MissingFields = []string{}
	conv.State = models.StateActive
	conv.Outcome = ""
	conv.FlowStarted = false
	conv.LastChoice = ""
	conv.MatchedIssueID = ""

	def := e.catalog.Flow(models.IntentGeneral)
	welcome := def.Steps[0]
	resp := e.respond(conv, def)
	resp.Message = welcome.Content
	resp.Choices = welcome.Choices
	slog.Debug("Engine.startOver: conversation reset", "conversationID", conv.ID)
	return resp
}

// restartFlow re-runs the current flow from its first step, clearing
// collected data but keeping the intent.
func (e *Engine) restartFlow(conv *models.Conversation, def *models.FlowDefinition) *models.EngineResponse {
	conv.CurrentStep = 0
	conv.CompletedSteps = []int{}
	conv.CollectedData = map[string]string{}
	conv.MissingFields = []string{}
	conv.State = models.StateActive
	conv.FlowStarted = false
	conv.LastChoice = ""
	return e.beginFlow(conv, def)
}

// completeStep marks a step done and moves forward. Steps are only ever
// appended once and the pointer never moves backward here.
func (e *Engine) completeStep(conv *models.Conversation, idx int) {
	for _, done := range conv.CompletedSteps {
		if done == idx {
			if conv.CurrentStep <= idx {
				conv.CurrentStep = idx + 1
			}
			return
		}
	}
	conv.CompletedSteps = append(conv.CompletedSteps, idx)
	if conv.CurrentStep <= idx {
		conv.CurrentStep = idx + 1
	}
}

func stepPrompt(step models.Step) string {
	switch step.Type {
	case models.StepDataCollection:
		if len(step.Fields) > 0 && step.Fields[0].Prompt != "" {
			return step.Fields[0].Prompt
		}
	case models.StepChoice, models.StepConditionalRouting:
		if step.Content != "" {
			return step.Content
		}
	}
	if step.Content != "" {
		return step.Content
	}
	return "Go on."
}

func validChoice(step models.Step, value string) bool {
	for _, c := range step.Choices {
		if c.Value == value {
			return true
		}
	}
	return false
}

// matchChoice maps free text onto a choice value by value or label.
func matchChoice(step models.Step, message string) (string, bool) {
	lowered := strings.ToLower(strings.TrimSpace(message))
	for _, c := range step.Choices {
		if lowered == strings.ToLower(c.Value) || lowered == strings.ToLower(c.Label) {
			return c.Value, true
		}
	}
	for _, c := range step.Choices {
		if strings.Contains(lowered, strings.ToLower(c.Value)) || strings.Contains(lowered, strings.ToLower(c.Label)) {
			return c.Value, true
		}
	}
	return "", false
}

func isAffirmative(message string) bool {
	switch strings.ToLower(strings.TrimSpace(message)) {
	case "yes", "y", "yes please", "confirm", "ok", "okay", "sure", "go ahead", "do it":
		return true
	}
	return false
}

func isNegative(message string) bool {
	switch strings.ToLower(strings.TrimSpace(message)) {
	case "no", "n", "cancel", "stop", "no thanks", "not yet":
		return true
	}
	return false
}

func summaryStep(def *models.FlowDefinition, after int) *models.Step {
	for i := after + 1; i < len(def.Steps); i++ {
		if def.Steps[i].Type == models.StepSummary {
			return &def.Steps[i]
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
