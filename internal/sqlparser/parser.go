// Package sqlparser splits annotated SQL migration files into statements.
//
// A migration file looks like:
//
//	-- +migrate Up
//	CREATE TABLE lines (id INTEGER PRIMARY KEY, name TEXT);
//
//	-- +migrate StatementBegin
//	CREATE TRIGGER lines_touch AFTER UPDATE ON lines BEGIN
//		UPDATE lines SET name = trim(name) WHERE id = NEW.id;
//	END;
//	-- +migrate StatementEnd
//
//	-- +migrate Down
//	DROP TABLE lines;
//
// Statements end at a line whose last word (before any "--" comment) ends with a semicolon.
// Between StatementBegin and StatementEnd semicolons are ignored. "-- +migrate ENVSUB ON" turns
// on ${VAR} substitution from the process environment until "-- +migrate ENVSUB OFF".
package sqlparser

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mfridman/interpolate"
)

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

func FromBool(b bool) Direction {
	if b {
		return DirectionUp
	}
	return DirectionDown
}

func (d Direction) String() string {
	return string(d)
}

type parserState int

const (
	start                 parserState = iota // 0
	stateUp                                  // 1
	stateStatementBeginUp                    // 2
	stateStatementEndUp                      // 3
	stateDown                                // 4
	stateStatementBeginDown                  // 5
	stateStatementEndDown                    // 6
)

type stateMachine struct {
	state  parserState
	logger *slog.Logger
}

func newStateMachine(begin parserState, logger *slog.Logger) *stateMachine {
	return &stateMachine{
		state:  begin,
		logger: logger,
	}
}

func (s *stateMachine) get() parserState {
	return s.state
}

func (s *stateMachine) set(new parserState) {
	s.print("set state", slog.Int("from", int(s.state)), slog.Int("to", int(new)))
	s.state = new
}

func (s *stateMachine) print(msg string, attrs ...slog.Attr) {
	s.logger.LogAttrs(context.Background(), slog.LevelDebug, "sqlparser: "+msg, attrs...)
}

const scanBufSize = 4 * 1024 * 1024

var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, scanBufSize)
		return &buf
	},
}

const annotationPrefix = "+migrate "

// ParsedSQL holds the statements of both directions of a migration file.
type ParsedSQL struct {
	Up, Down []string
}

// ParseAllFromFS reads filename from fsys and parses both directions. A nil logger discards
// parser tracing.
func ParseAllFromFS(fsys fs.FS, filename string, logger *slog.Logger) (*ParsedSQL, error) {
	data, err := fs.ReadFile(fsys, filename)
	if err != nil {
		return nil, err
	}
	parsed := new(ParsedSQL)
	for _, direction := range []Direction{DirectionUp, DirectionDown} {
		stmts, err := ParseSQLMigration(bytes.NewReader(data), direction, logger)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		if direction == DirectionUp {
			parsed.Up = stmts
		} else {
			parsed.Down = stmts
		}
	}
	return parsed, nil
}

// ParseSQLMigration splits a migration script into statements and returns those of the given
// direction.
func ParseSQLMigration(r io.Reader, direction Direction, logger *slog.Logger) (stmts []string, err error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	scanBufPtr := bufferPool.Get().(*[]byte)
	scanBuf := *scanBufPtr
	defer bufferPool.Put(scanBufPtr)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(scanBuf, scanBufSize)

	stateMachine := newStateMachine(start, logger)
	var envsub bool

	var buf bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		stateMachine.print("line", slog.String("text", line))
		if stateMachine.get() == start && strings.TrimSpace(line) == "" {
			continue
		}
		if cmd, ok := annotation(line); ok {
			switch cmd {
			case "Up":
				switch stateMachine.get() {
				case start:
					stateMachine.set(stateUp)
				default:
					return nil, fmt.Errorf("duplicate '-- +migrate Up' annotations; state=%d", stateMachine.state)
				}
				continue

			case "Down":
				switch stateMachine.get() {
				case stateUp, stateStatementEndUp:
					// An unterminated Up statement is still in the buffer.
					if bufferRemaining := strings.TrimSpace(buf.String()); len(bufferRemaining) > 0 {
						return nil, missingSemicolonError(stateMachine.state, direction, bufferRemaining)
					}
					stateMachine.set(stateDown)
				default:
					return nil, fmt.Errorf("must start with '-- +migrate Up' annotation, state=%d", stateMachine.state)
				}
				continue

			case "StatementBegin":
				switch stateMachine.get() {
				case stateUp, stateStatementEndUp:
					stateMachine.set(stateStatementBeginUp)
				case stateDown, stateStatementEndDown:
					stateMachine.set(stateStatementBeginDown)
				default:
					return nil, fmt.Errorf("'-- +migrate StatementBegin' must be defined after '-- +migrate Up' or '-- +migrate Down' annotation, state=%d", stateMachine.state)
				}
				continue

			case "StatementEnd":
				switch stateMachine.get() {
				case stateStatementBeginUp:
					stateMachine.set(stateStatementEndUp)
				case stateStatementBeginDown:
					stateMachine.set(stateStatementEndDown)
				default:
					return nil, errors.New("'-- +migrate StatementEnd' must be defined after '-- +migrate StatementBegin'")
				}

			case "ENVSUB ON":
				envsub = true
				stateMachine.print("envsub on")
				continue

			case "ENVSUB OFF":
				envsub = false
				stateMachine.print("envsub off")
				continue

			default:
				return nil, fmt.Errorf("unknown annotation %q", "-- "+annotationPrefix+cmd)
			}
		}
		// Leading comments and empty lines before a statement are dropped; once a statement has
		// started everything is kept until it ends.
		if buf.Len() == 0 {
			if strings.HasPrefix(strings.TrimSpace(line), "--") || line == "" {
				stateMachine.print("ignore comment")
				continue
			}
		}
		switch stateMachine.get() {
		case stateStatementEndDown, stateStatementEndUp:
			// The StatementEnd annotation is not part of the statement.
		default:
			if envsub {
				expanded, err := interpolate.Interpolate(&envWrapper{}, line)
				if err != nil {
					return nil, fmt.Errorf("variable substitution failed: %w:\n%s", err, line)
				}
				line = expanded
			}
			if _, err := buf.WriteString(line + "\n"); err != nil {
				return nil, fmt.Errorf("failed to write to buf: %w", err)
			}
		}
		switch stateMachine.get() {
		case stateUp, stateStatementBeginUp, stateStatementEndUp:
			if direction == DirectionDown {
				buf.Reset()
				stateMachine.print("ignore up")
				continue
			}
		case stateDown, stateStatementBeginDown, stateStatementEndDown:
			if direction == DirectionUp {
				buf.Reset()
				stateMachine.print("ignore down")
				continue
			}
		default:
			return nil, fmt.Errorf("failed to parse migration: unexpected state %d on line %q", stateMachine.state, line)
		}

		switch stateMachine.get() {
		case stateUp, stateDown:
			if endsWithSemicolon(line) {
				stmts = append(stmts, cleanupStatement(buf.String()))
				buf.Reset()
				stateMachine.print("store simple query")
			}
		case stateStatementEndUp:
			stmts = append(stmts, cleanupStatement(buf.String()))
			buf.Reset()
			stateMachine.print("store Up statement")
			stateMachine.set(stateUp)
		case stateStatementEndDown:
			stmts = append(stmts, cleanupStatement(buf.String()))
			buf.Reset()
			stateMachine.print("store Down statement")
			stateMachine.set(stateDown)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan migration: %w", err)
	}

	switch stateMachine.get() {
	case start:
		return nil, errors.New("failed to parse migration: must start with '-- +migrate Up' annotation")
	case stateStatementBeginUp, stateStatementBeginDown:
		return nil, errors.New("failed to parse migration: missing '-- +migrate StatementEnd' annotation")
	}

	if bufferRemaining := strings.TrimSpace(buf.String()); len(bufferRemaining) > 0 {
		return nil, missingSemicolonError(stateMachine.state, direction, bufferRemaining)
	}

	return stmts, nil
}

// annotation reports whether line is a "-- +migrate ..." annotation and returns its command.
func annotation(line string) (string, bool) {
	if !strings.HasPrefix(line, "--") {
		return "", false
	}
	cmd := strings.TrimSpace(strings.TrimPrefix(line, "--"))
	if !strings.HasPrefix(cmd, annotationPrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(cmd, annotationPrefix)), true
}

func missingSemicolonError(state parserState, direction Direction, s string) error {
	return fmt.Errorf("failed to parse migration: state %d, direction: %v: unexpected unfinished SQL query: %q: missing semicolon?",
		state,
		direction,
		s,
	)
}

func cleanupStatement(input string) string {
	return strings.TrimSpace(input)
}

// endsWithSemicolon reports whether the last word before any "--" comment ends with a semicolon.
func endsWithSemicolon(line string) bool {
	scanBufPtr := bufferPool.Get().(*[]byte)
	scanBuf := *scanBufPtr
	defer bufferPool.Put(scanBufPtr)

	prev := ""
	scanner := bufio.NewScanner(strings.NewReader(line))
	scanner.Buffer(scanBuf, scanBufSize)
	scanner.Split(bufio.ScanWords)

	for scanner.Scan() {
		word := scanner.Text()
		if strings.HasPrefix(word, "--") {
			break
		}
		prev = word
	}

	return strings.HasSuffix(prev, ";")
}

type envWrapper struct{}

var _ interpolate.Env = (*envWrapper)(nil)

func (e *envWrapper) Get(key string) (string, bool) {
	return os.LookupEnv(key)
}
