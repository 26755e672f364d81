// dbtool runs operational checks and seed data loads against a
// clinvera database. Schema migrations themselves are applied with
// goose (see db/migrations).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: dbtool <schema-smoke|seed-codelists> [args]")
	}

	switch os.Args[1] {
	case "schema-smoke":
		schemaSmoke(os.Args[2:])
	case "seed-codelists":
		seedCodeLists(os.Args[2:])
	default:
		fatalf("unknown subcommand: %s", os.Args[1])
	}
}

func connect(args []string, name string) (*pgx.Conn, context.Context, context.CancelFunc) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url string
	fs.StringVar(&url, "url", "", "postgres connection string")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		fatalf("missing --url and DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		cancel()
		fatal(err)
	}
	return conn, ctx, cancel
}

// schemaSmoke verifies that every table the server expects is present.
func schemaSmoke(args []string) {
	conn, ctx, cancel := connect(args, "schema-smoke")
	defer cancel()
	defer conn.Close(context.Background())

	for _, table := range []string{"studies", "forms", "codelists", "submissions", "documents"} {
		var exists bool
		err := conn.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			table).Scan(&exists)
		if err != nil {
			fatal(err)
		}
		if !exists {
			fatalf("table missing: %s (run goose up)", table)
		}
		fmt.Printf("ok: %s\n", table)
	}
}

type seedCodeList struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Values []struct {
		Code   string `json:"code"`
		Label  string `json:"label"`
		Active bool   `json:"active"`
	} `json:"values"`
}

// seedCodeLists loads a JSON array of codelists, upserting by code.
// Writes are attributed to the explicit "dbtool" actor.
func seedCodeLists(args []string) {
	fs := flag.NewFlagSet("seed-codelists", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var file, url string
	fs.StringVar(&file, "file", "", "path to codelists JSON")
	fs.StringVar(&url, "url", "", "postgres connection string")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if file == "" {
		fatalf("missing --file")
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		fatal(err)
	}
	var lists []seedCodeList
	if err := json.Unmarshal(raw, &lists); err != nil {
		fatal(err)
	}

	connArgs := []string{}
	if url != "" {
		connArgs = append(connArgs, "-url", url)
	}
	conn, ctx, cancel := connect(connArgs, "seed-codelists")
	defer cancel()
	defer conn.Close(context.Background())

	now := time.Now().UTC()
	for _, cl := range lists {
		doc, err := json.Marshal(map[string]any{
			"code":      cl.Code,
			"name":      cl.Name,
			"values":    cl.Values,
			"createdBy": "dbtool",
			"createdAt": now,
			"updatedBy": "dbtool",
			"updatedAt": now,
		})
		if err != nil {
			fatal(err)
		}
		_, err = conn.Exec(ctx,
			`INSERT INTO codelists (code, doc) VALUES ($1, $2)
			 ON CONFLICT (code) DO UPDATE SET doc = EXCLUDED.doc`,
			cl.Code, doc)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("seeded codelist: %s (%d values)\n", cl.Code, len(cl.Values))
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
