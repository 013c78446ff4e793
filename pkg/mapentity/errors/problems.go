package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
)

// ProblemDetails stores details about a certain problem according to RFC7807
// See https://tools.ietf.org/html/rfc7807
type ProblemDetails interface {
	ContentType() string
	Type() string
	Title() string
	Detail() string
	MarshalJSON() ([]byte, error)
	WriteResponse(w http.ResponseWriter)
}

type ProblemDetailsImpl struct {
	typ     string
	title   string
	detail  string
	code    int
	traceID string
}

const (
	// ProblemReportContentType as required by https://tools.ietf.org/html/rfc7807
	ProblemReportContentType string = "application/problem+json"
)

const (
	TypeBadRequestData   string = "urn:mapentity:errors:BadRequestData"
	TypeInvalidRequest   string = "urn:mapentity:errors:InvalidRequest"
	TypeUnauthorized     string = "urn:mapentity:errors:UnauthorizedRequest"
	TypePermissionDenied string = "urn:mapentity:errors:PermissionDenied"
	TypeNotFound         string = "urn:mapentity:errors:ResourceNotFound"
	TypeAlreadyExists    string = "urn:mapentity:errors:AlreadyExists"
	TypeRenderingFailed  string = "urn:mapentity:errors:RenderingFailed"
	TypeInternalError    string = "urn:mapentity:errors:InternalError"
)

func newProblem(typ, title, detail string, code int, traceID string) *ProblemDetailsImpl {
	return &ProblemDetailsImpl{typ: typ, title: title, detail: detail, code: code, traceID: traceID}
}

func NewBadRequestData(detail, traceID string) ProblemDetails {
	return newProblem(TypeBadRequestData, "Bad Request Data", detail, http.StatusBadRequest, traceID)
}

func NewInvalidRequest(detail, traceID string) ProblemDetails {
	return newProblem(TypeInvalidRequest, "Invalid Request", detail, http.StatusBadRequest, traceID)
}

func NewUnauthorizedRequest(detail, traceID string) ProblemDetails {
	return newProblem(TypeUnauthorized, "Unauthorized Request", detail, http.StatusUnauthorized, traceID)
}

func NewPermissionDenied(detail, traceID string) ProblemDetails {
	return newProblem(TypePermissionDenied, "Permission Denied", detail, http.StatusForbidden, traceID)
}

func NewNotFound(detail, traceID string) ProblemDetails {
	return newProblem(TypeNotFound, "Not Found", detail, http.StatusNotFound, traceID)
}

func NewAlreadyExists(detail, traceID string) ProblemDetails {
	return newProblem(TypeAlreadyExists, "Already Exists", detail, http.StatusConflict, traceID)
}

func NewRenderingFailed(detail, traceID string) ProblemDetails {
	return newProblem(TypeRenderingFailed, "Rendering Failed", detail, http.StatusBadGateway, traceID)
}

func NewInternal(detail, traceID string) ProblemDetails {
	return newProblem(TypeInternalError, "Internal Error", detail, http.StatusInternalServerError, traceID)
}

// ReportError maps an error to its problem report and writes it to the
// supplied http.ResponseWriter.
func ReportError(w http.ResponseWriter, err error, traceID string) {
	var problem ProblemDetails

	switch {
	case stderrors.Is(err, ErrUnknownAttribute),
		stderrors.Is(err, ErrTypeMismatch),
		stderrors.Is(err, ErrUnsupportedFormat),
		stderrors.Is(err, ErrMixedGeometryTypes):
		problem = NewBadRequestData(err.Error(), traceID)
	case stderrors.Is(err, ErrInvalidRequest):
		problem = NewInvalidRequest(err.Error(), traceID)
	case stderrors.Is(err, ErrPermissionDenied):
		problem = NewPermissionDenied(err.Error(), traceID)
	case stderrors.Is(err, ErrUnknownKind), stderrors.Is(err, ErrNotFound):
		problem = NewNotFound(err.Error(), traceID)
	case stderrors.Is(err, ErrAlreadyExists):
		problem = NewAlreadyExists(err.Error(), traceID)
	case stderrors.Is(err, ErrRendering):
		problem = NewRenderingFailed(err.Error(), traceID)
	default:
		problem = NewInternal(err.Error(), traceID)
	}

	problem.WriteResponse(w)
}

// NewErrorFromProblemReport turns a problem report received over the
// wire back into the matching error.
func NewErrorFromProblemReport(code int, contentType string, body []byte) error {
	report := &struct {
		Type   string `json:"type"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}{}

	err := json.Unmarshal(body, report)
	if err != nil {
		return NewInternalError("failed to process problem report: " + err.Error())
	}

	switch report.Type {
	case TypeBadRequestData:
		return NewTypeMismatchError(report.Detail)
	case TypeInvalidRequest:
		return NewInvalidRequestError(report.Detail)
	case TypeUnauthorized, TypePermissionDenied:
		return NewPermissionDeniedError(report.Detail)
	case TypeAlreadyExists:
		return NewAlreadyExistsError(report.Detail)
	case TypeRenderingFailed:
		return NewRenderingError(report.Detail)
	}

	if code == http.StatusNotFound || report.Type == TypeNotFound {
		return NewNotFoundError(report.Detail)
	}

	return NewInternalError(report.Detail)
}

func (p *ProblemDetailsImpl) ContentType() string {
	return ProblemReportContentType
}

func (p *ProblemDetailsImpl) Type() string {
	return p.typ
}

func (p *ProblemDetailsImpl) Title() string {
	return p.title
}

func (p *ProblemDetailsImpl) Detail() string {
	return p.detail
}

func (p *ProblemDetailsImpl) MarshalJSON() ([]byte, error) {
	var traceID *string

	if p.traceID != "" {
		traceID = &p.traceID
	}

	return json.Marshal(struct {
		Type    string  `json:"type"`
		Title   string  `json:"title"`
		Detail  string  `json:"detail"`
		TraceID *string `json:"traceID,omitempty"`
	}{
		Type:    p.typ,
		Title:   p.title,
		Detail:  p.detail,
		TraceID: traceID,
	})
}

func (p *ProblemDetailsImpl) ResponseCode() int {
	if p.code != 0 {
		return p.code
	}

	return http.StatusBadRequest
}

func (p *ProblemDetailsImpl) WriteResponse(w http.ResponseWriter) {
	w.Header().Add("Content-Type", p.ContentType())
	w.Header().Add("Content-Language", "en")
	w.WriteHeader(p.ResponseCode())

	pdbytes, err := json.MarshalIndent(p, "", "  ")
	if err == nil {
		w.Write(pdbytes)
	}
}
