// Package flow implements the SAGE conversation engine: the flow catalog,
// intent classification, entity extraction, known-issue matching, and the
// step machine that drives a conversation from greeting to record creation.
package flow

import (
	"fmt"

	"github.com/ecsf-gov/sage/internal/models"
)

// Catalog holds the scripted flow definitions keyed by intent.
type Catalog struct {
	flows map[models.Intent]*models.FlowDefinition
}

// NewCatalog builds the default catalog with the built-in flows.
func NewCatalog() *Catalog {
	c := &Catalog{flows: make(map[models.Intent]*models.FlowDefinition)}
	for _, def := range []*models.FlowDefinition{
		onboardingFlow(),
		offboardingFlow(),
		itSupportFlow(),
		generalFlow(),
	} {
		c.flows[def.Intent] = def
	}
	return c
}

// Register adds or replaces a flow definition after validating it.
func (c *Catalog) Register(def *models.FlowDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid flow %s: %w", def.Intent, err)
	}
	c.flows[def.Intent] = def
	return nil
}

// Flow returns the definition for an intent, falling back to the general flow.
func (c *Catalog) Flow(intent models.Intent) *models.FlowDefinition {
	if def, ok := c.flows[intent]; ok {
		return def
	}
	return c.flows[models.IntentGeneral]
}

func onboardingFlow() *models.FlowDefinition {
	return &models.FlowDefinition{
		Intent:      models.IntentOnboarding,
		Title:       "Employee onboarding",
		Description: "Set up accounts, equipment, and access for a new employee.",
		Steps: []models.Step{
			{
				Type:    models.StepWelcome,
				Name:    "welcome",
				Content: "Let's get your new team member set up. I'll collect a few details and then create the HR, IT, and manager tasks for you.",
			},
			{
				Type:   models.StepDataCollection,
				Name:   "employee_name",
				Field:  "employee_name",
				Fields: []models.FieldSpec{{Name: "employee_name", Label: "Employee name", Prompt: "What is the new employee's full name?", Required: true}},
			},
			{
				Type:    models.StepChoice,
				Name:    "department",
				Field:   "department",
				Content: "Which department are they joining?",
				Choices: []models.Choice{
					{Label: "Engineering", Value: "engineering"},
					{Label: "HR", Value: "hr"},
					{Label: "Finance", Value: "finance"},
					{Label: "Operations", Value: "operations"},
					{Label: "Legal", Value: "legal"},
					{Label: "Other", Value: "other"},
				},
			},
			{
				Type:   models.StepDataCollection,
				Name:   "start_date",
				Field:  "start_date",
				Fields: []models.FieldSpec{{Name: "start_date", Label: "Start date", Prompt: "When do they start?", Required: true}},
			},
			{
				Type:   models.StepDataCollection,
				Name:   "equipment",
				Field:  "equipment",
				Fields: []models.FieldSpec{{Name: "equipment", Label: "Equipment", Prompt: "What equipment do they need (laptop, phone, monitor)?", Required: true}},
			},
			{
				Type:   models.StepDataCollection,
				Name:   "special_access",
				Field:  "special_access",
				Fields: []models.FieldSpec{{Name: "special_access", Label: "Special access", Prompt: "Do they need any special system access? Say 'none' if not.", Required: true}},
			},
			{
				Type:    models.StepConfirmation,
				Name:    "confirmation",
				Content: "Here's what I have for the onboarding. Shall I create the records?",
			},
			{
				Type: models.StepActionExecution,
				Name: "create_records",
				Actions: []models.ActionSpec{
					{ID: "create_hr_case", Type: models.ActionHR, Table: models.TableHRCase, Title: "Onboard new employee"},
					{ID: "create_it_request", Type: models.ActionIT, Table: models.TableRequest, Title: "Provision accounts and equipment"},
					{ID: "create_manager_task", Type: models.ActionManager, Table: models.TableTask, Title: "Prepare first-week plan"},
				},
			},
			{
				Type:    models.StepSummary,
				Name:    "summary",
				Content: "All onboarding records are in. You'll get updates as each team picks up its task.",
			},
		},
	}
}

func offboardingFlow() *models.FlowDefinition {
	return &models.FlowDefinition{
		Intent:      models.IntentOffboarding,
		Title:       "Employee offboarding",
		Description: "Close out access, equipment, and HR records for a departing employee.",
		Steps: []models.Step{
			{
				Type:    models.StepWelcome,
				Name:    "welcome",
				Content: "I can handle the offboarding. A few details first, then I'll raise the security and HR requests.",
			},
			{
				Type:   models.StepDataCollection,
				Name:   "employee_name",
				Field:  "employee_name",
				Fields: []models.FieldSpec{{Name: "employee_name", Label: "Employee name", Prompt: "Who is leaving?", Required: true}},
			},
			{
				Type:   models.StepDataCollection,
				Name:   "last_day",
				Field:  "last_day",
				Fields: []models.FieldSpec{{Name: "last_day", Label: "Last day", Prompt: "What is their last working day?", Required: true}},
			},
			{
				Type:   models.StepDataCollection,
				Name:   "reason",
				Field:  "reason",
				Fields: []models.FieldSpec{{Name: "reason", Label: "Reason", Prompt: "What's the reason for leaving (resignation, end of contract, transfer)?", Required: true}},
			},
			{
				Type:    models.StepChoice,
				Name:    "has_equipment",
				Field:   "has_equipment",
				Content: "Do they have company equipment to return?",
				Choices: []models.Choice{
					{Label: "Yes", Value: "yes"},
					{Label: "No", Value: "no"},
				},
			},
			{
				Type:   models.StepDataCollection,
				Name:   "notes",
				Field:  "notes",
				Fields: []models.FieldSpec{{Name: "notes", Label: "Notes", Prompt: "Anything else the teams should know? Say 'none' if not.", Required: true}},
			},
			{
				Type:    models.StepConfirmation,
				Name:    "confirmation",
				Content: "Here's the offboarding summary. Shall I create the records?",
			},
			{
				Type: models.StepActionExecution,
				Name: "create_records",
				Actions: []models.ActionSpec{
					{ID: "revoke_access", Type: models.ActionSecurity, Table: models.TableSecurity, Title: "Revoke system access"},
					{ID: "collect_equipment", Type: models.ActionSecurity, Table: models.TableSecurity, Title: "Collect company equipment"},
					{ID: "create_hr_case", Type: models.ActionHR, Table: models.TableHRCase, Title: "Process employee exit"},
				},
			},
			{
				Type:    models.StepSummary,
				Name:    "summary",
				Content: "Offboarding records created. Security and HR will take it from here.",
			},
		},
	}
}

func itSupportFlow() *models.FlowDefinition {
	return &models.FlowDefinition{
		Intent:      models.IntentITSupport,
		Title:       "IT support",
		Description: "Troubleshoot an IT issue and raise an incident when needed.",
		Steps: []models.Step{
			{
				Type:    models.StepWelcome,
				Name:    "welcome",
				Content: "Sorry you're having trouble. Let's narrow the issue down; I may even have a known fix.",
			},
			{
				Type:    models.StepChoice,
				Name:    "category",
				Field:   "category",
				Content: "What kind of issue is it?",
				Choices: []models.Choice{
					{Label: "VPN", Value: "vpn"},
					{Label: "Email", Value: "email"},
					{Label: "Software", Value: "software"},
					{Label: "Hardware", Value: "hardware"},
					{Label: "Access / sign-in", Value: "access"},
					{Label: "Something else", Value: "other"},
				},
			},
			{
				Type:   models.StepDataCollection,
				Name:   "issue_description",
				Field:  "issue_description",
				Fields: []models.FieldSpec{{Name: "issue_description", Label: "Issue description", Prompt: "Describe what's happening, including any error messages.", Required: true}},
			},
			{
				Type:    models.StepKnownIssueCheck,
				Name:    "known_issue_check",
				Content: "Let me check whether this matches a known issue.",
			},
			{
				Type:   models.StepDataCollection,
				Name:   "steps_tried",
				Field:  "steps_tried",
				Fields: []models.FieldSpec{{Name: "steps_tried", Label: "Steps tried", Prompt: "What have you already tried? Say 'nothing yet' if you haven't.", Required: true}},
			},
			{
				Type:    models.StepChoice,
				Name:    "urgency",
				Field:   "urgency",
				Content: "How urgent is this?",
				Choices: []models.Choice{
					{Label: "1 - Blocking all work", Value: "1"},
					{Label: "2 - Major slowdown", Value: "2"},
					{Label: "3 - Annoying but workable", Value: "3"},
					{Label: "4 - Low priority", Value: "4"},
				},
			},
			{
				Type:    models.StepConfirmation,
				Name:    "confirmation",
				Content: "I have everything for the incident. Shall I raise it?",
			},
			{
				Type: models.StepActionExecution,
				Name: "create_records",
				Actions: []models.ActionSpec{
					{ID: "create_incident", Type: models.ActionIT, Table: models.TableIncident, Title: "IT support incident"},
				},
			},
			{
				Type:    models.StepSummary,
				Name:    "summary",
				Content: "Your incident is raised. The service desk will reach out with updates.",
			},
		},
	}
}

func generalFlow() *models.FlowDefinition {
	return &models.FlowDefinition{
		Intent:      models.IntentGeneral,
		Title:       "General assistance",
		Description: "Route the user to one of the scripted flows.",
		Steps: []models.Step{
			{
				Type:    models.StepWelcome,
				Name:    "welcome",
				Content: "Hi! I can help with onboarding a new employee, offboarding someone who's leaving, or an IT issue. What do you need?",
				Choices: []models.Choice{
					{Label: "Onboard a new employee", Value: "onboarding"},
					{Label: "Offboard an employee", Value: "offboarding"},
					{Label: "IT help", Value: "it_support"},
				},
			},
		},
	}
}
