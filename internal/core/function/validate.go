package function

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// =============================================================================
// Field Errors
// =============================================================================

// Validation errors, one per sub-check. Their text is what callers display next
// to the offending field.
var (
	ErrNameRequired     = errors.New("name is required")
	ErrNameTooShort     = fmt.Errorf("name must be at least %d characters", MinNameLength)
	ErrNameTooLong      = fmt.Errorf("name cannot exceed %d characters", MaxNameLength)
	ErrNameInvalidChars = errors.New("name can only contain letters, numbers, underscores, and hyphens")

	ErrDescriptionTooLong = fmt.Errorf("description cannot exceed %d characters", MaxDescriptionLength)

	ErrSourceTypeInvalid = errors.New("source type must be inline or github")

	ErrRuntimeUnsupported = errors.New("invalid runtime selected")

	ErrHandlerRequired = errors.New("handler is required")
	ErrHandlerInvalid  = errors.New("handler format invalid (e.g., index.handler)")

	ErrTimeoutNotNumber = errors.New("timeout must be a number")
	ErrTimeoutNotWhole  = errors.New("timeout must be a whole number of seconds")
	ErrTimeoutTooSmall  = fmt.Errorf("timeout must be at least %d second", MinTimeout)
	ErrTimeoutTooLarge  = fmt.Errorf("timeout cannot exceed %d seconds", MaxTimeout)

	ErrMemoryNotNumber  = errors.New("memory must be a number")
	ErrMemoryNotWhole   = errors.New("memory must be a whole number of MB")
	ErrMemoryTooSmall   = fmt.Errorf("memory must be at least %d MB", MinMemory)
	ErrMemoryTooLarge   = fmt.Errorf("memory cannot exceed %d MB", MaxMemory)
	ErrMemoryNotAligned = fmt.Errorf("memory must be a multiple of %d MB", MemoryStep)

	ErrSchemaInvalidJSON = errors.New("must be valid JSON or empty")
	ErrSchemaNotObject   = errors.New("must be a JSON object or empty")

	ErrInlineCodeRequired = errors.New("function code cannot be empty when using inline code source")
)

var (
	nameRegex    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	handlerRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

// FieldErrors maps a field name to the message of its first violated rule.
type FieldErrors map[string]string

// Fields returns the names of the failing fields in sorted order.
func (e FieldErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// HasConfigurationError reports whether a failure stems from the deployment
// environment (an unsupported runtime) rather than a user typo.
func (e FieldErrors) HasConfigurationError() bool {
	_, ok := e[FieldRuntime]
	return ok
}

func (e FieldErrors) add(field string, err error) {
	if err == nil {
		return
	}
	if _, exists := e[field]; exists {
		return
	}
	e[field] = err.Error()
}

// =============================================================================
// Result
// =============================================================================

// Result is the outcome of Validate. Exactly one of Config or Errors is
// meaningful: Errors is empty for a valid candidate.
type Result struct {
	Config Config
	Errors FieldErrors
}

// Valid reports whether the candidate passed every rule.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// =============================================================================
// Validate
// =============================================================================

// Validate checks a candidate against every field and cross-field rule and
// returns either the normalized Config or one message per failing field.
func Validate(c Candidate) Result {
	var cfg Config
	errs := FieldErrors{}

	cfg.Name = validateNameField(c, errs)
	cfg.Description = optionalString(c, FieldDescription, errs)
	errs.add(FieldDescription, ValidateDescription(cfg.Description))

	cfg.SourceType = validateSourceTypeField(c, errs)
	cfg.Runtime = validateRuntimeField(c, errs)
	cfg.Handler = validateHandlerField(c, errs)

	cfg.Timeout = wholeNumber(c, FieldTimeout, DefaultTimeout, ErrTimeoutNotNumber, ErrTimeoutNotWhole, errs)
	if _, failed := errs[FieldTimeout]; !failed {
		errs.add(FieldTimeout, ValidateTimeout(cfg.Timeout))
	}

	cfg.Memory = wholeNumber(c, FieldMemory, DefaultMemory, ErrMemoryNotNumber, ErrMemoryNotWhole, errs)
	if _, failed := errs[FieldMemory]; !failed {
		errs.add(FieldMemory, ValidateMemory(cfg.Memory))
	}

	cfg.InlineCode = optionalString(c, FieldInlineCode, errs)
	cfg.RepoURL = optionalString(c, FieldRepoURL, errs)
	cfg.Branch = optionalString(c, FieldBranch, errs)
	cfg.FilePath = optionalString(c, FieldFilePath, errs)
	cfg.CredentialID = optionalString(c, FieldCredentialID, errs)

	cfg.InputSchema = validateSchemaField(c, FieldInputSchema, errs)
	cfg.OutputSchema = validateSchemaField(c, FieldOutputSchema, errs)

	if _, failed := errs[FieldInlineCode]; !failed {
		errs.add(FieldInlineCode, ValidateInlineCode(cfg.SourceType, cfg.InlineCode))
	}

	if len(errs) > 0 {
		return Result{Errors: errs}
	}
	return Result{Config: cfg}
}

// ValidateConfig re-validates an already typed config.
func ValidateConfig(cfg Config) Result {
	return Validate(cfg.Candidate())
}

// =============================================================================
// Single-field rules
// =============================================================================

// ValidateName checks name length and charset.
func ValidateName(name string) error {
	if name == "" {
		return ErrNameRequired
	}
	n := utf8.RuneCountInString(name)
	if n < MinNameLength {
		return ErrNameTooShort
	}
	if n > MaxNameLength {
		return ErrNameTooLong
	}
	if !nameRegex.MatchString(name) {
		return ErrNameInvalidChars
	}
	return nil
}

// ValidateDescription checks the description length bound.
func ValidateDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

// ValidateHandler checks the handler is non-empty and uses the allowed charset.
func ValidateHandler(handler string) error {
	if handler == "" {
		return ErrHandlerRequired
	}
	if !handlerRegex.MatchString(handler) {
		return ErrHandlerInvalid
	}
	return nil
}

// ValidateRuntime checks the runtime is supported.
func ValidateRuntime(r Runtime) error {
	if !r.IsSupported() {
		return ErrRuntimeUnsupported
	}
	return nil
}

// ValidateTimeout checks timeout bounds in seconds.
func ValidateTimeout(seconds int) error {
	if seconds < MinTimeout {
		return ErrTimeoutTooSmall
	}
	if seconds > MaxTimeout {
		return ErrTimeoutTooLarge
	}
	return nil
}

// ValidateMemory checks memory bounds and alignment in MB.
func ValidateMemory(mb int) error {
	if mb < MinMemory {
		return ErrMemoryTooSmall
	}
	if mb > MaxMemory {
		return ErrMemoryTooLarge
	}
	if mb%MemoryStep != 0 {
		return ErrMemoryNotAligned
	}
	return nil
}

// ValidateSchemaDocument checks that a schema string is empty or a JSON object.
func ValidateSchemaDocument(doc string) error {
	if strings.TrimSpace(doc) == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return ErrSchemaInvalidJSON
	}
	if _, ok := v.(map[string]any); !ok {
		return ErrSchemaNotObject
	}
	return nil
}

// ValidateInlineCode enforces that inline functions carry code.
func ValidateInlineCode(source SourceType, code string) error {
	if source == SourceInline && strings.TrimSpace(code) == "" {
		return ErrInlineCodeRequired
	}
	return nil
}

// =============================================================================
// Candidate extraction
// =============================================================================

func typeError(field, kind string) error {
	return fmt.Errorf("%s must be a %s", field, kind)
}

func optionalString(c Candidate, field string, errs FieldErrors) string {
	s, _, ok := c.stringField(field)
	if !ok {
		errs.add(field, typeError(field, "string"))
		return ""
	}
	return s
}

func validateNameField(c Candidate, errs FieldErrors) string {
	name, _, ok := c.stringField(FieldName)
	if !ok {
		errs.add(FieldName, typeError(FieldName, "string"))
		return ""
	}
	errs.add(FieldName, ValidateName(name))
	return name
}

func validateSourceTypeField(c Candidate, errs FieldErrors) SourceType {
	s, present, ok := c.stringField(FieldSourceType)
	if !ok {
		errs.add(FieldSourceType, ErrSourceTypeInvalid)
		return ""
	}
	if !present {
		return DefaultSourceType
	}
	source := SourceType(s)
	if !source.IsValid() {
		errs.add(FieldSourceType, ErrSourceTypeInvalid)
		return ""
	}
	return source
}

func validateRuntimeField(c Candidate, errs FieldErrors) Runtime {
	s, _, ok := c.stringField(FieldRuntime)
	if !ok {
		errs.add(FieldRuntime, ErrRuntimeUnsupported)
		return ""
	}
	r := Runtime(s)
	errs.add(FieldRuntime, ValidateRuntime(r))
	return r
}

// validateHandlerField applies the default only when the key is missing or
// null. An explicitly empty handler is an error.
func validateHandlerField(c Candidate, errs FieldErrors) string {
	raw, found := c.lookup(FieldHandler)
	if !found {
		return DefaultHandler
	}
	handler, ok := raw.(string)
	if !ok {
		errs.add(FieldHandler, typeError(FieldHandler, "string"))
		return ""
	}
	errs.add(FieldHandler, ValidateHandler(handler))
	return handler
}

func wholeNumber(c Candidate, field string, def int, notNumber, notWhole error, errs FieldErrors) int {
	f, present, ok := c.numberField(field)
	if !ok {
		errs.add(field, notNumber)
		return 0
	}
	if !present {
		return def
	}
	if !isWhole(f) {
		errs.add(field, notWhole)
		return 0
	}
	// Clamp far out-of-range values so the int conversion is well defined;
	// the bound checks still reject them.
	if f < -1<<31 {
		f = -1 << 31
	}
	if f > 1<<31 {
		f = 1 << 31
	}
	return int(f)
}

func validateSchemaField(c Candidate, field string, errs FieldErrors) string {
	doc, _, ok := c.stringField(field)
	if !ok {
		errs.add(field, typeError(field, "string"))
		return ""
	}
	if strings.TrimSpace(doc) == "" {
		return EmptySchema
	}
	errs.add(field, ValidateSchemaDocument(doc))
	return doc
}
