package engine

import (
	"context"
	stdErrors "errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
)

const programName = "script"

var framePosition = regexp.MustCompile(`:(\d+):(\d+)\(\d+\)`)

// compile parses and compiles a script. Parse failures become SyntaxError
// with the position of the first problem.
func compile(script string) (*goja.Program, error) {
	prg, err := parser.ParseFile(nil, programName, script, 0)
	if err != nil {
		return nil, syntaxError(err)
	}
	p, err := goja.CompileAST(prg, false)
	if err != nil {
		return nil, syntaxError(err)
	}
	return p, nil
}

func syntaxError(err error) *errors.SyntaxError {
	var list parser.ErrorList
	if stdErrors.As(err, &list) && len(list) > 0 {
		return &errors.SyntaxError{
			Message: list[0].Message,
			Line:    list[0].Position.Line,
			Column:  list[0].Position.Column,
		}
	}
	var perr *parser.Error
	if stdErrors.As(err, &perr) {
		return &errors.SyntaxError{Message: perr.Message, Line: perr.Position.Line, Column: perr.Position.Column}
	}
	return &errors.SyntaxError{Message: err.Error()}
}

// execute runs prg under ctx. The runtime is interrupted with the context
// cause as soon as ctx is done.
func (s *evalScope) execute(prg *goja.Program) (any, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.ctx.Done():
			s.vm.Interrupt(ctxCause(s.ctx))
		case <-done:
		}
	}()

	v, err := s.vm.RunProgram(prg)
	if s.mismatch != nil {
		return nil, s.mismatch
	}
	if err != nil {
		return nil, s.classify(err)
	}
	v, err = s.settle(v)
	if err != nil {
		return nil, err
	}
	out := export(v)
	if err := s.checkValue(out); err != nil {
		return nil, err
	}
	return out, nil
}

// classify maps an error returned by the runtime to the error taxonomy.
// Go errors thrown by bindings keep their type.
func (s *evalScope) classify(err error) error {
	var interrupted *goja.InterruptedError
	if stdErrors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return cause
		}
		return &errors.RuntimeError{Message: fmt.Sprint(interrupted.Value())}
	}

	var overflow *goja.StackOverflowError
	if stdErrors.As(err, &overflow) {
		return &errors.RuntimeError{Message: "maximum call stack depth exceeded", Stack: overflow.String()}
	}

	var ex *goja.Exception
	if stdErrors.As(err, &ex) {
		return thrown(ex.Value(), ex.String())
	}

	var cse *goja.CompilerSyntaxError
	if stdErrors.As(err, &cse) {
		return &errors.SyntaxError{Message: cse.Message}
	}
	return &errors.RuntimeError{Message: err.Error()}
}

// thrown converts a thrown script value. stack is the printed trace.
func thrown(v goja.Value, stack string) error {
	line := stackLine(stack)
	if goErr := goError(v); goErr != nil {
		var re *errors.RuntimeError
		if stdErrors.As(goErr, &re) && re.Line == 0 {
			cp := *re
			cp.Line = line
			if cp.Stack == "" {
				cp.Stack = stack
			}
			return &cp
		}
		var de errors.DetailedError
		if stdErrors.As(goErr, &de) || isSentinel(goErr) {
			return goErr
		}
		return &errors.RuntimeError{Message: goErr.Error(), Line: line, Stack: stack, Err: goErr}
	}
	return &errors.RuntimeError{Message: thrownMessage(v), Line: line, Stack: stack}
}

// goError extracts the Go error wrapped by Runtime.NewGoError.
func goError(v goja.Value) error {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	inner := obj.Get("value")
	if inner == nil {
		return nil
	}
	err, _ := inner.Export().(error)
	return err
}

func thrownMessage(v goja.Value) string {
	if v == nil {
		return "exception"
	}
	if obj, ok := v.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			if name := obj.Get("name"); name != nil && !goja.IsUndefined(name) {
				return name.String() + ": " + msg.String()
			}
			return msg.String()
		}
	}
	return v.String()
}

func stackLine(stack string) int {
	m := framePosition.FindStringSubmatch(stack)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func isSentinel(err error) bool {
	for _, s := range []error{errors.ErrDisposed, errors.ErrCancelled, errors.ErrFutureNotFound, errors.ErrRequestNotFound} {
		if stdErrors.Is(err, s) {
			return true
		}
	}
	return false
}

// settle unwraps a promise result. Jobs have already run when RunProgram
// returns, so a pending promise can no longer settle.
func (s *evalScope) settle(v goja.Value) (goja.Value, error) {
	if v == nil {
		return v, nil
	}
	p, ok := v.Export().(*goja.Promise)
	if !ok {
		return v, nil
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return p.Result(), nil
	case goja.PromiseStateRejected:
		return nil, thrown(p.Result(), "")
	}
	return nil, &errors.RuntimeError{Message: "script returned a promise that never settled"}
}

func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// ctxCause maps a finished context to the error taxonomy.
func ctxCause(ctx context.Context) error {
	cause := context.Cause(ctx)
	switch {
	case cause == nil:
		return nil
	case cause == context.Canceled:
		return errors.ErrCancelled
	case cause == context.DeadlineExceeded:
		return &errors.TimeoutError{Operation: "script execution"}
	}
	return cause
}
