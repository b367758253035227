// Package credentials locates the API key pair used by the bfx CLI.
//
// Lookup order: the API_KEY and API_SECRET environment variables, then a
// .bfx_cli.env file in the working directory, then one in the home
// directory. When none is found and prompting is enabled the user is asked
// for the pair, which is saved to the home directory file with mode 0600.
package credentials

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/jmerrifield20/bfx/pkg/client"
)

const (
	EnvAPIKey    = "API_KEY"
	EnvAPISecret = "API_SECRET"

	// FileName is the dotenv file holding API_KEY and API_SECRET.
	FileName = ".bfx_cli.env"
)

// ErrNotFound is returned when no credentials exist and prompting is off.
var ErrNotFound = errors.New("no api credentials found: set API_KEY and API_SECRET or create " + FileName)

// SourceEnv is the Source reported for credentials taken from the environment.
const SourceEnv = "environment"

// Resolver finds credentials. The zero value is not usable; start from
// Default and override fields in tests.
type Resolver struct {
	Getenv  func(string) string
	WorkDir string
	HomeDir string

	// Prompt enables asking on In and writing questions to Out.
	Prompt bool
	In     io.Reader
	Out    io.Writer
}

// Default returns a Resolver wired to the process environment and the
// terminal.
func Default() *Resolver {
	wd, _ := os.Getwd()
	home, _ := os.UserHomeDir()
	return &Resolver{
		Getenv:  os.Getenv,
		WorkDir: wd,
		HomeDir: home,
		Prompt:  true,
		In:      os.Stdin,
		Out:     os.Stderr,
	}
}

// Resolve returns the credentials and where they came from: SourceEnv or
// the path of the file they were read from or saved to.
func (r *Resolver) Resolve() (client.Credentials, string, error) {
	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if key, secret := getenv(EnvAPIKey), getenv(EnvAPISecret); key != "" && secret != "" {
		return client.Credentials{APIKey: key, APISecret: secret}, SourceEnv, nil
	}

	for _, dir := range []string{r.WorkDir, r.HomeDir} {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, FileName)
		creds, err := readFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return client.Credentials{}, path, err
		}
		return creds, path, nil
	}

	if !r.Prompt {
		return client.Credentials{}, "", ErrNotFound
	}
	if r.HomeDir == "" {
		return client.Credentials{}, "", fmt.Errorf("cannot save credentials: home directory unknown")
	}
	creds, err := r.ask()
	if err != nil {
		return client.Credentials{}, "", err
	}
	path := filepath.Join(r.HomeDir, FileName)
	if err := Save(path, creds); err != nil {
		return client.Credentials{}, "", err
	}
	return creds, path, nil
}

func readFile(path string) (client.Credentials, error) {
	if _, err := os.Stat(path); err != nil {
		return client.Credentials{}, err
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return client.Credentials{}, fmt.Errorf("read %s: %w", path, err)
	}
	creds := client.Credentials{APIKey: env[EnvAPIKey], APISecret: env[EnvAPISecret]}
	if creds.APIKey == "" || creds.APISecret == "" {
		return client.Credentials{}, fmt.Errorf("%s must set both %s and %s", path, EnvAPIKey, EnvAPISecret)
	}
	return creds, nil
}

func (r *Resolver) ask() (client.Credentials, error) {
	if r.In == nil || r.Out == nil {
		return client.Credentials{}, ErrNotFound
	}
	in := bufio.NewReader(r.In)
	read := func(question string) (string, error) {
		fmt.Fprint(r.Out, question)
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("read answer: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	key, err := read("Please enter your Bitfinex API key: ")
	if err != nil {
		return client.Credentials{}, err
	}
	secret, err := read("Please enter your Bitfinex API secret: ")
	if err != nil {
		return client.Credentials{}, err
	}
	if key == "" || secret == "" {
		return client.Credentials{}, fmt.Errorf("both the API key and the API secret are required")
	}
	return client.Credentials{APIKey: key, APISecret: secret}, nil
}

// Save writes creds to path in dotenv format, readable only by the owner.
func Save(path string, creds client.Credentials) error {
	data, err := godotenv.Marshal(map[string]string{EnvAPIKey: creds.APIKey, EnvAPISecret: creds.APISecret})
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.WriteFile(path, []byte(data+"\n"), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	// WriteFile keeps the mode of an existing file.
	return os.Chmod(path, 0o600)
}
