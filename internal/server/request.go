package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tkohara/ragchat/internal/errdefs"
)

// decode unmarshals and validates a JSON request body.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errdefs.Wrap(err, errdefs.InvalidArgument, errdefs.CodeInvalidRequest, "malformed JSON body")
	}
	if err := s.validate.Struct(v); err != nil {
		return errdefs.E(errdefs.InvalidArgument, errdefs.CodeInvalidParameter, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return fmt.Sprintf("field %s failed %s validation", f.Field(), f.Tag())
	}
	return "invalid request"
}

// pathUUID parses a UUID URL parameter.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errdefs.E(errdefs.InvalidArgument, errdefs.CodeInvalidParameter,
			fmt.Sprintf("%s must be a UUID", name))
	}
	return id, nil
}

// queryInt reads an integer query parameter, zero when absent or
// unparseable.
func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}

// pageParams reads limit/offset and normalizes them to the values the
// list endpoints actually apply, so responses echo the effective page.
func pageParams(r *http.Request) (limit, offset int) {
	limit, offset = queryInt(r, "limit"), queryInt(r, "offset")
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
