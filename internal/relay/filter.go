package relay

import (
	"context"

	"personrelay/internal/person"
	"personrelay/pkg/cel"
)

// recordFilter keeps records for which the configured CEL expression is
// true. Expressions see record.PersonID, record.Email (null when absent) and
// message_id.
type recordFilter struct {
	predicate *cel.Predicate
}

func compileFilter(expression string) (*recordFilter, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, err
	}
	predicate, err := evaluator.CompileFilter(expression)
	if err != nil {
		return nil, err
	}
	return &recordFilter{predicate: predicate}, nil
}

// match reports false on evaluation errors.
func (f *recordFilter) match(ctx context.Context, messageID string, p person.Person) (bool, error) {
	record := map[string]interface{}{
		"PersonID": p.PersonID,
		"Email":    nil,
	}
	if p.Email != nil {
		record["Email"] = *p.Email
	}

	keep, err := f.predicate.Eval(ctx, messageID, record)
	if err != nil {
		return false, err
	}
	return keep, nil
}
