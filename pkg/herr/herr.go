// Package herr provides the structured error type shared by every core
// runtime component: a numeric code, a category name, a human message, an
// optional wrapped cause and an optional native-backend code (spec.md §7).
package herr

import "fmt"

// Category groups related error codes, mirroring spec.md §7.
type Category string

const (
	Common  Category = "common"
	Base    Category = "base"
	DataDef Category = "dataunit"
	Db      Category = "db"
	Crypt   Category = "crypt"
	Api     Category = "api"
	Utility Category = "utility"
	Mq      Category = "mq"
)

// Code is a stable, comparable error code within a Category.
type Code string

const (
	// Common
	ErrInvalidArg    Code = "invalid_arg"
	ErrTimeout       Code = "timeout"
	ErrAborted       Code = "aborted"
	ErrNotSupported  Code = "not_supported"
	ErrInvalidSize   Code = "invalid_size"
	ErrNotImplemented Code = "not_implemented"

	// Base
	ErrConfigParse          Code = "config_parse"
	ErrInvalidType          Code = "invalid_type"
	ErrValueNotSet          Code = "value_not_set"
	ErrPathNotFound         Code = "path_not_found"
	ErrMismatchedArrayTypes Code = "mismatched_array_types"
	ErrRequiredConfigField  Code = "required_config_field_missing"

	// DataUnit
	ErrWireTypeMismatch      Code = "wire_type_mismatch"
	ErrEndOfStream           Code = "end_of_stream"
	ErrSuspectOverflow       Code = "suspect_overflow"
	ErrRequiredFieldMissing  Code = "required_field_missing"
	ErrJsonParseError        Code = "json_parse_error"
	ErrJsonFieldSerializeErr Code = "json_field_serialize_error"

	// Db
	ErrModelNotFound          Code = "model_not_found"
	ErrPartitionNotFound      Code = "partition_not_found"
	ErrDuplicateUniqueKey     Code = "duplicate_unique_key"
	ErrDbOperationFailed      Code = "operation_failed"
	ErrModelTopicRelationSave Code = "model_topic_relation_save"
	ErrModelTopicRelationRead Code = "model_topic_relation_read"
	ErrModelTopicRelationDel  Code = "model_topic_relation_del"
	ErrModelTopicRelationDes  Code = "model_topic_relation_deser"
	ErrNotFound               Code = "not_found"

	// Crypt
	ErrInvalidAlgorithm       Code = "invalid_algorithm"
	ErrCipherSuiteJsonFailed  Code = "cipher_suite_json_failed"
	ErrInvalidDigestState     Code = "invalid_digest_state"
	ErrCryptGeneralFail       Code = "general_fail"
	ErrNotSupportedByPlugin   Code = "not_supported_by_plugin"
	ErrPluginNotLoaded        Code = "plugin_not_loaded"

	// Api
	ErrDuplicateMicroservice   Code = "duplicate_microservice"
	ErrMicroserviceRunFailed   Code = "microservice_run_failed"
	ErrMicroserviceCreateFail  Code = "microservice_create_failed"
	ErrUnknownDispatcher       Code = "unknown_dispatcher"
	ErrUnknownAuthDispatcher   Code = "unknown_auth_dispatcher"
	ErrUnknownService          Code = "unknown_service"
	ErrUnknownMethod           Code = "unknown_method"

	// Utility
	ErrUnknownRole Code = "unknown_role"
	ErrIOFailed    Code = "io_failed"

	// Mq
	ErrDuplicateObjectID Code = "duplicate_object_id"
)

// Error is the structured error carried across the whole runtime.
type Error struct {
	Code       Code
	Category   Category
	Message    string
	Cause      error
	NativeCode int

	// Scope is the task-context scope-stack description attached when the
	// error crosses a logctx.Context boundary (spec.md §7, "augmented with
	// the current scope stack description").
	Scope string
}

func New(cat Category, code Code, msg string) *Error {
	return &Error{Category: cat, Code: code, Message: msg}
}

func Wrap(cat Category, code Code, msg string, cause error) *Error {
	return &Error{Category: cat, Code: code, Message: msg, Cause: cause}
}

func (e *Error) Error() string {
	if e.Scope != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s/%s: %s (scope: %s): %v", e.Category, e.Code, e.Message, e.Scope, e.Cause)
		}
		return fmt.Sprintf("%s/%s: %s (scope: %s)", e.Category, e.Code, e.Message, e.Scope)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s/%s: %s", e.Category, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, herr.New(cat, code, "")) style category+code
// comparisons without caring about the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" && t.Category == "" {
		return false
	}
	return (t.Code == "" || t.Code == e.Code) && (t.Category == "" || t.Category == e.Category)
}

// WithScope returns a copy of e with the scope description attached.
func (e *Error) WithScope(scope string) *Error {
	cp := *e
	cp.Scope = scope
	return &cp
}

// Is returns a sentinel usable with errors.Is to test only code+category.
func Is(code Code) *Error { return &Error{Code: code} }
