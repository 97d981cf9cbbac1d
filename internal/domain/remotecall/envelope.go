package remotecall

// ErrorBody is the error portion of an envelope.
type ErrorBody struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
}

// Envelope is the single response shape returned for every remote call.
type Envelope struct {
	Status     Status                 `json:"status"`
	Data       *HostOutcome           `json:"data"`
	Error      *ErrorBody             `json:"error"`
	Target     map[string]interface{} `json:"target,omitempty"`
	AllResults []StepOutcome          `json:"all_results,omitempty"`
}

// Err reconstructs the domain error carried by the envelope, or nil.
func (e Envelope) Err() *DomainError {
	if e.Error == nil {
		return nil
	}
	return &DomainError{Code: e.Error.Code, Message: e.Error.Message, Context: e.Error.Detail}
}

// Assemble merges the outputs of the lease, resolve and execute stages. The
// first error in that order wins. A nil result means execution never ran.
func Assemble(leaseErr, resolveErr error, result *ExecutionResult) Envelope {
	if leaseErr != nil {
		return Failure(leaseErr)
	}
	if resolveErr != nil {
		return Failure(resolveErr)
	}
	if result == nil {
		return Failure(NewInternalError("execution produced no result", nil))
	}

	env := Envelope{
		Status: result.Status,
		Data:   result.Primary,
		Target: result.Target,
	}
	if result.Executed {
		env.AllResults = result.Steps
	}
	if result.Err != nil {
		env.Status = StatusError
		env.Error = errorBody(result.Err)
	}
	if env.Status == "" {
		env.Status = StatusSuccess
	}
	return env
}

// Failure builds an error envelope for a request that never reached
// execution.
func Failure(err error) Envelope {
	return Envelope{
		Status: StatusError,
		Error:  errorBody(AsDomainError(err)),
	}
}

func errorBody(err *DomainError) *ErrorBody {
	if err == nil {
		return nil
	}
	message := err.Message
	if err.Cause != nil {
		message = message + ": " + err.Cause.Error()
	}
	var detail map[string]interface{}
	if len(err.Context) > 0 {
		detail = make(map[string]interface{}, len(err.Context))
		for k, v := range err.Context {
			detail[k] = v
		}
	}
	return &ErrorBody{Code: err.Code, Message: message, Detail: detail}
}
