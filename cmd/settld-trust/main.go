// Command settld-trust initializes a trust directory: governance root keys,
// an optional time authority key, and (in local mode) their private key
// material. See spec §6 for the exact flag surface and exit codes.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"settld/internal/cryptoutil"
	"settld/internal/trust"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}
	switch args[0] {
	case "init":
		return runInit(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "settld-trust: unknown command %q\n", args[0])
		usage(stderr)
		return exitUsage
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage:
  settld-trust init --out DIR [--format json|text] [--force] [--with-time-authority]
  settld-trust init --mode remote-only --out DIR
                    --governance-root-key-id ID [--time-authority-key-id ID]
                    (--signer-url URL [--signer-auth bearer (--signer-token-env VAR|--signer-token-file PATH)]
                                      [--signer-header "H: v"]
                    | --signer-command CMD --signer-args-json JSON)
                    [--format json|text] [--force]`)
}

type initFlags struct {
	out                 string
	format              string
	force               bool
	withTimeAuthority   bool
	mode                string
	governanceRootKeyID string
	timeAuthorityKeyID  string
	signerURL           string
	signerAuth          string
	signerTokenEnv      string
	signerTokenFile     string
	signerHeader        string
	signerCommand       string
	signerArgsJSON      string
}

// trustInitOutput is the JSON shape returned by `init --format json`, named
// TrustInitOutput.v1 per spec §6.
type trustInitOutput struct {
	SchemaVersion string          `json:"schemaVersion"`
	OutDir        string          `json:"outDir"`
	TrustPath     string          `json:"trustPath"`
	KeypairsPath  *string         `json:"keypairsPath"`
	KeyIDs        trustInitKeyIDs `json:"keyIds"`
	Mode          string          `json:"mode"`
}

type trustInitKeyIDs struct {
	GovernanceRoot string `json:"governanceRoot"`
	Server         string `json:"server,omitempty"`
	TimeAuthority  string `json:"timeAuthority,omitempty"`
}

func runInit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := initFlags{}
	fs.StringVar(&f.out, "out", "", "output directory")
	fs.StringVar(&f.format, "format", "json", "output format: json|text")
	fs.BoolVar(&f.force, "force", false, "overwrite an existing trust directory")
	fs.BoolVar(&f.withTimeAuthority, "with-time-authority", false, "also generate a local time authority key")
	fs.StringVar(&f.mode, "mode", "local", "local|remote-only")
	fs.StringVar(&f.governanceRootKeyID, "governance-root-key-id", "", "existing governance root key id (remote-only mode)")
	fs.StringVar(&f.timeAuthorityKeyID, "time-authority-key-id", "", "existing time authority key id (remote-only mode)")
	fs.StringVar(&f.signerURL, "signer-url", "", "remote signer HTTP endpoint")
	fs.StringVar(&f.signerAuth, "signer-auth", "", "remote signer auth scheme, e.g. bearer")
	fs.StringVar(&f.signerTokenEnv, "signer-token-env", "", "env var holding the bearer token")
	fs.StringVar(&f.signerTokenFile, "signer-token-file", "", "file holding the bearer token")
	fs.StringVar(&f.signerHeader, "signer-header", "", `extra header, "Name: value"`)
	fs.StringVar(&f.signerCommand, "signer-command", "", "remote signer command to exec")
	fs.StringVar(&f.signerArgsJSON, "signer-args-json", "", "JSON array of args for --signer-command")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if f.out == "" {
		fmt.Fprintln(stderr, "settld-trust: --out is required")
		return exitUsage
	}
	if f.format != "json" && f.format != "text" {
		fmt.Fprintln(stderr, "settld-trust: --format must be json or text")
		return exitUsage
	}

	if !f.force {
		if _, err := os.Stat(f.out); err == nil {
			if _, _, err := trust.Load(f.out); err == nil {
				fmt.Fprintf(stderr, "settld-trust: %s already initialized; use --force\n", f.out)
				return exitError
			}
		}
	}

	var out trustInitOutput
	var err error
	switch f.mode {
	case "local":
		out, err = initLocal(f)
	case "remote-only":
		out, err = initRemoteOnly(f)
	default:
		fmt.Fprintln(stderr, "settld-trust: --mode must be local or remote-only")
		return exitUsage
	}
	if err != nil {
		fmt.Fprintf(stderr, "settld-trust: %v\n", err)
		return exitError
	}

	if f.format == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	} else {
		printText(stdout, out)
	}
	return exitOK
}

func initLocal(f initFlags) (trustInitOutput, error) {
	store := trust.NewStore("local")
	keypairs := trust.NewLocalKeyPairs()

	govKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		return trustInitOutput{}, fmt.Errorf("generate governance root key: %w", err)
	}
	store.AddGovernanceRoot(govKP.KeyID, govKP.PublicKeyPEM, trust.KeyProvenance{Source: trust.KeySourceLocal})
	keypairs.Add("governanceRoot", govKP)

	serverKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		return trustInitOutput{}, fmt.Errorf("generate server key: %w", err)
	}
	keypairs.Add("server", serverKP)

	ids := trustInitKeyIDs{GovernanceRoot: govKP.KeyID, Server: serverKP.KeyID}

	if f.withTimeAuthority {
		timeKP, err := cryptoutil.GenerateKeyPair()
		if err != nil {
			return trustInitOutput{}, fmt.Errorf("generate time authority key: %w", err)
		}
		store.AddTimeAuthority(timeKP.KeyID, timeKP.PublicKeyPEM, trust.KeyProvenance{Source: trust.KeySourceLocal})
		keypairs.Add("timeAuthority", timeKP)
		ids.TimeAuthority = timeKP.KeyID
	}

	trustPath, keypairsPath, err := trust.Save(f.out, store, keypairs)
	if err != nil {
		return trustInitOutput{}, err
	}
	var kpPathPtr *string
	if keypairsPath != "" {
		kpPathPtr = &keypairsPath
	}
	return trustInitOutput{
		SchemaVersion: "TrustInitOutput.v1",
		OutDir:        f.out,
		TrustPath:     trustPath,
		KeypairsPath:  kpPathPtr,
		KeyIDs:        ids,
		Mode:          "local",
	}, nil
}

func initRemoteOnly(f initFlags) (trustInitOutput, error) {
	if f.governanceRootKeyID == "" {
		return trustInitOutput{}, fmt.Errorf("--governance-root-key-id is required in remote-only mode")
	}
	hasURL := f.signerURL != ""
	hasCommand := f.signerCommand != ""
	if hasURL == hasCommand {
		return trustInitOutput{}, fmt.Errorf("exactly one of --signer-url or --signer-command is required")
	}
	if hasURL && f.signerAuth == "bearer" && f.signerTokenEnv == "" && f.signerTokenFile == "" {
		return trustInitOutput{}, fmt.Errorf("--signer-auth bearer requires --signer-token-env or --signer-token-file")
	}
	if hasCommand && f.signerArgsJSON == "" {
		return trustInitOutput{}, fmt.Errorf("--signer-command requires --signer-args-json")
	}

	store := trust.NewStore("remote-only")
	prov := remoteProvenance(f)
	// Remote-only mode never holds a PEM locally; the key id is trusted as
	// asserted by the operator and resolved to public key material lazily
	// by the remote signer capability at verification time.
	store.GovernanceRoots[f.governanceRootKeyID] = ""
	store.Provenance[f.governanceRootKeyID] = prov
	ids := trustInitKeyIDs{GovernanceRoot: f.governanceRootKeyID}
	if f.timeAuthorityKeyID != "" {
		store.TimeAuthorities[f.timeAuthorityKeyID] = ""
		store.Provenance[f.timeAuthorityKeyID] = prov
		ids.TimeAuthority = f.timeAuthorityKeyID
	}

	trustPath, _, err := trust.Save(f.out, store, nil)
	if err != nil {
		return trustInitOutput{}, err
	}
	return trustInitOutput{
		SchemaVersion: "TrustInitOutput.v1",
		OutDir:        f.out,
		TrustPath:     trustPath,
		KeypairsPath:  nil,
		KeyIDs:        ids,
		Mode:          "remote-only",
	}, nil
}

func remoteProvenance(f initFlags) trust.KeyProvenance {
	if f.signerURL != "" {
		return trust.KeyProvenance{Source: trust.KeySourceRemote, URL: f.signerURL}
	}
	return trust.KeyProvenance{Source: trust.KeySourceRemote, Command: f.signerCommand}
}

func printText(stdout io.Writer, out trustInitOutput) {
	fmt.Fprintf(stdout, "trust directory initialized: %s\n", out.OutDir)
	fmt.Fprintf(stdout, "mode:               %s\n", out.Mode)
	fmt.Fprintf(stdout, "trust.json:         %s\n", out.TrustPath)
	if out.KeypairsPath != nil {
		fmt.Fprintf(stdout, "keypairs.json:      %s\n", *out.KeypairsPath)
	}
	fmt.Fprintf(stdout, "governanceRoot key: %s\n", out.KeyIDs.GovernanceRoot)
	if out.KeyIDs.Server != "" {
		fmt.Fprintf(stdout, "server key:         %s\n", out.KeyIDs.Server)
	}
	if out.KeyIDs.TimeAuthority != "" {
		fmt.Fprintf(stdout, "timeAuthority key:  %s\n", out.KeyIDs.TimeAuthority)
	}
}
