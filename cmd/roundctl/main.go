// Package main is the round administration CLI. It drives the server's HTTP
// API; the admin capability is read from the ADMIN_CAP environment variable.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const usage = `Usage: roundctl <command> [flags]

Round lifecycle:
  create            Create a round (-owner, -kind)
  configure         Configure caps, window and vesting (-round, -config-file)
  start             Open the raising phase (-round)
  end               Close the raising phase (-round)
  end-refund        Close the refund window (-round)
  deposit           Fund the claims pool (-round, -amount)
  distribute        Pay raised coins to the owner (-round, -actor, -amount)
  withdraw-unsold   Return unsold tokens to the owner (-round, -actor)

Access control:
  allocation-set    Set an investor's contribution cap (-round, -investor, -amount)
  allocation-clear  Remove an investor's override (-round, -investor)
  whitelist-add     Admit investors (-round, -investors a,b,c)
  whitelist-remove  Revoke admissions (-round, -investors a,b,c)
  kyc-attest        Mark a principal as KYC-verified (-principal)
  kyc-revoke        Remove a KYC attestation (-principal)

Vesting:
  milestone-add     Append a vesting milestone (-round, -time, -percent)
  milestone-reset   Clear all milestones (-round)

Ownership:
  owner             Transfer the round (-round, -owner)

Inspection:
  get               Show one round (-round)
  list              Show all rounds
  events            Show a round's audit trail (-round)

Common flags: -addr (default $SERVER_ADDR or http://localhost:8080)
`

type client struct {
	addr     string
	adminCap string
	http     *http.Client
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	addr := fs.String("addr", envOr("SERVER_ADDR", "http://localhost:8080"), "Server base URL")

	roundID := fs.String("round", "", "Round ID")
	owner := fs.String("owner", "", "Owner principal (base58)")
	kind := fs.String("kind", "PUBLIC", "Round kind: SEED, PRIVATE or PUBLIC")
	actor := fs.String("actor", "", "Acting principal (base58)")
	investor := fs.String("investor", "", "Investor principal (base58)")
	investors := fs.String("investors", "", "Comma-separated investor principals")
	principal := fs.String("principal", "", "Principal (base58)")
	amount := fs.Uint64("amount", 0, "Amount in base units")
	msTime := fs.Int64("time", 0, "Milestone time (unix ms)")
	percent := fs.Uint64("percent", 0, "Milestone percent (100000 = 100%)")
	configFile := fs.String("config-file", "", "JSON round configuration file")

	fs.Parse(args)

	c := &client{
		addr:     strings.TrimRight(*addr, "/"),
		adminCap: os.Getenv("ADMIN_CAP"),
		http:     &http.Client{Timeout: 30 * time.Second},
	}

	var err error
	switch cmd {
	case "create":
		err = c.post("/api/rounds", map[string]any{"owner": *owner, "kind": *kind})
	case "configure":
		err = c.configure(*roundID, *configFile)
	case "start":
		err = c.post("/api/rounds/"+*roundID+"/start", nil)
	case "end":
		err = c.post("/api/rounds/"+*roundID+"/end", nil)
	case "end-refund":
		err = c.post("/api/rounds/"+*roundID+"/end-refund", nil)
	case "deposit":
		err = c.post("/api/rounds/"+*roundID+"/token-fund", map[string]any{"amount": *amount})
	case "distribute":
		err = c.post("/api/rounds/"+*roundID+"/distribute", map[string]any{"actor": *actor, "amount": *amount})
	case "withdraw-unsold":
		err = c.post("/api/rounds/"+*roundID+"/withdraw-unsold", map[string]any{"actor": *actor})
	case "allocation-set":
		err = c.do(http.MethodPut, "/api/rounds/"+*roundID+"/allocations/"+*investor, map[string]any{"amount": *amount})
	case "allocation-clear":
		err = c.do(http.MethodDelete, "/api/rounds/"+*roundID+"/allocations/"+*investor, nil)
	case "whitelist-add":
		err = c.post("/api/rounds/"+*roundID+"/whitelist/add", map[string]any{"investors": splitList(*investors)})
	case "whitelist-remove":
		err = c.post("/api/rounds/"+*roundID+"/whitelist/remove", map[string]any{"investors": splitList(*investors)})
	case "kyc-attest":
		err = c.post("/api/kyc/attest", map[string]any{"principal": *principal})
	case "kyc-revoke":
		err = c.post("/api/kyc/revoke", map[string]any{"principal": *principal})
	case "milestone-add":
		err = c.post("/api/rounds/"+*roundID+"/milestones", map[string]any{"time": *msTime, "percent": *percent})
	case "milestone-reset":
		err = c.do(http.MethodDelete, "/api/rounds/"+*roundID+"/milestones", nil)
	case "owner":
		err = c.do(http.MethodPut, "/api/rounds/"+*roundID+"/owner", map[string]any{"owner": *owner})
	case "get":
		err = c.get("/api/rounds/" + *roundID)
	case "list":
		err = c.get("/api/rounds")
	case "events":
		err = c.get("/api/rounds/" + *roundID + "/events")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configure reads the round configuration JSON from a file (or stdin when
// the path is "-") and submits it verbatim.
func (c *client) configure(roundID, path string) error {
	if path == "" {
		return fmt.Errorf("-config-file is required")
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read configuration: %w", err)
	}

	var body json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		return fmt.Errorf("parse configuration: %w", err)
	}
	return c.do(http.MethodPost, "/api/rounds/"+roundID+"/configure", body)
}

func (c *client) post(path string, body any) error {
	return c.do(http.MethodPost, path, body)
}

func (c *client) get(path string) error {
	return c.do(http.MethodGet, path, nil)
}

// do sends one API request and prints the JSON response to stdout.
func (c *client) do(method, path string, body any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.addr+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.adminCap != "" {
		req.Header.Set("X-Admin-Cap", c.adminCap)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	// Pretty-print the response.
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		os.Stdout.Write(data)
		return nil
	}
	out.WriteByte('\n')
	out.WriteTo(os.Stdout)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
