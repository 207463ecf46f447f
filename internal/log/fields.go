package log

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldQuery        = "query"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldUserAgent    = "user_agent"
	FieldSuccess      = "success"
	FieldError        = "error"
	FieldErrorType    = "error_type"
	FieldOperation    = "operation"
	FieldGoalID       = "goal_id"
	FieldProofID      = "proof_id"
	FieldUserID       = "user_id"
	FieldSlot         = "slot"
	FieldSlots        = "slots"
	FieldDecision     = "decision"
	FieldInvitationID = "invitation_id"
	FieldEventType    = "event_type"
	FieldAmountCents  = "amount_cents"
)

// Components defines standard component names
const (
	ComponentApp         = "app"
	ComponentHTTP        = "http"
	ComponentLedger      = "ledger"
	ComponentPool        = "pool"
	ComponentGoals       = "goals"
	ComponentInvitations = "invitations"
	ComponentProfile     = "profile"
	ComponentSession     = "session"
	ComponentStorage     = "storage"
	ComponentAMQP        = "amqp"
	ComponentWorker      = "worker"
	ComponentScheduler   = "scheduler"
	ComponentMirror      = "mirror"
	ComponentAuth        = "auth"
	ComponentSecurity    = "security"
	ComponentRateLimit   = "rate_limit"
)

// Operations defines standard operation names
const (
	OpRead      = "read"
	OpDraw      = "draw"
	OpSubmit    = "submit"
	OpDecide    = "decide"
	OpReconcile = "reconcile"
	OpMirror    = "mirror"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error text; a nil error adds nothing.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithErrorType adds the error classification reported to clients.
func (f LogFields) WithErrorType(kind string) LogFields {
	f[FieldErrorType] = kind
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithGoal adds the goal and acting user. Empty values are skipped.
func (f LogFields) WithGoal(goalID, userID string) LogFields {
	if goalID != "" {
		f[FieldGoalID] = goalID
	}
	if userID != "" {
		f[FieldUserID] = userID
	}
	return f
}

// WithProof adds proof fields. Slot zero is omitted.
func (f LogFields) WithProof(proofID string, slot int, decision string) LogFields {
	f[FieldProofID] = proofID
	if slot > 0 {
		f[FieldSlot] = slot
	}
	if decision != "" {
		f[FieldDecision] = decision
	}
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
