package cel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFilterExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{name: "field equality", expr: `record.PersonID == "1"`},
		{name: "string function", expr: `record.Email != null && record.Email.endsWith("@example.com")`},
		{name: "message id", expr: `message_id != ""`},
		{name: "syntax error", expr: `record.PersonID ==`, wantError: true},
		{name: "undefined variable", expr: `payload.status == "active"`, wantError: true},
		{name: "non bool", expr: `message_id + "x"`, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateFilterExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPredicate_Eval(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	p, err := eval.CompileFilter(`record.Email != null && record.Email.endsWith("@example.com")`)
	require.NoError(t, err)

	ok, err := p.Eval(context.Background(), "1", map[string]interface{}{"PersonID": "1", "Email": "user1@example.com"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Eval(context.Background(), "2", map[string]interface{}{"PersonID": "2", "Email": nil})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Eval(context.Background(), "3", map[string]interface{}{"PersonID": "3", "Email": "x@other.org"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPredicate_EvalMissingKey(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	p, err := eval.CompileFilter(`record.Age > 3`)
	require.NoError(t, err)

	_, err = p.Eval(context.Background(), "1", map[string]interface{}{"PersonID": "1"})
	assert.Error(t, err)
}
