// Command gen-token signs HS256 bearer tokens for local and perf runs. With a
// single user it prints the token. -output writes every token grouped by
// organization, which is what the load tools read.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	testutil "prism-board/tests/utils"
)

type tokenFile struct {
	Orgs   map[string][]string    `json:"orgs"`
	Tokens []testutil.IssuedToken `json:"tokens"`
}

func main() {
	plan := testutil.TokenPlan{}
	flag.IntVar(&plan.Users, "count", 1, "number of users to sign tokens for")
	flag.StringVar(&plan.UserPrefix, "prefix", "perf-user", "user id, or id prefix when count > 1")
	flag.IntVar(&plan.FirstUser, "start", 1, "index of the first numbered user")
	flag.IntVar(&plan.Orgs, "orgs", 1, "number of organizations to spread users over")
	flag.StringVar(&plan.OrgPrefix, "org", "perf-org", "organization, or org prefix when orgs > 1")
	flag.DurationVar(&plan.TTL, "ttl", time.Hour, "token lifetime")
	output := flag.String("output", "", "file to write the token set as JSON")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		if plan.Users > 1 {
			log.Fatal("explicit user ID cannot be provided when generating multiple tokens")
		}
		plan.UserPrefix = args[0]
	}

	secret := os.Getenv("TEST_JWT_SECRET")
	if secret == "" {
		log.Fatal("TEST_JWT_SECRET must be set")
	}
	tokens, err := testutil.IssueTokens([]byte(secret), plan)
	if err != nil {
		log.Fatalf("generate tokens: %v", err)
	}

	if *output != "" {
		if err := writeTokenFile(*output, tokens); err != nil {
			log.Fatalf("write tokens: %v", err)
		}
	}
	fmt.Print(tokens[0].Token)
}

func writeTokenFile(path string, tokens []testutil.IssuedToken) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tokenFile{Orgs: testutil.ByOrg(tokens), Tokens: tokens}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
