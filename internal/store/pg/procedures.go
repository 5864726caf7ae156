package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"

	"coursedesk.org/internal/catalog"
)

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ProcedureError is an error raised inside a stored procedure. Message is the
// database's own text.
type ProcedureError struct {
	Procedure string
	Message   string
	Code      string
}

func (e *ProcedureError) Error() string { return e.Message }

// CallProcedure invokes a stored procedure using named-argument notation and
// returns its single JSON result. A NULL result is returned as JSON null.
func (s *Store) CallProcedure(ctx context.Context, name string, params []catalog.Param) (json.RawMessage, error) {
	query, args, err := procedureQuery(name, params)
	if err != nil {
		return nil, err
	}
	var raw []byte
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			return nil, &ProcedureError{Procedure: name, Message: pgErr.Message, Code: pgErr.Code}
		}
		return nil, fmt.Errorf("call %s: %w", name, err)
	}
	if raw == nil {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(raw), nil
}

func procedureQuery(name string, params []catalog.Param) (string, []any, error) {
	if !identifier.MatchString(name) {
		return "", nil, fmt.Errorf("invalid procedure name %q", name)
	}
	var b strings.Builder
	args := make([]any, 0, len(params))
	b.WriteString("select ")
	b.WriteString(name)
	b.WriteString("(")
	for i, p := range params {
		if !identifier.MatchString(p.Name) {
			return "", nil, errors.New("invalid parameter name " + p.Name)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s => $%d", p.Name, i+1)
		switch v := p.Value.(type) {
		case []string:
			b.WriteString("::text[]")
			args = append(args, pq.Array(v))
		default:
			args = append(args, v)
		}
	}
	b.WriteString(")")
	return b.String(), args, nil
}
