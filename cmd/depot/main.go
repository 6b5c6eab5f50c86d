package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"depot/internal/client"
)

const usage = `usage: depot [-server URL] <command> [args]

commands:
  login [username]              log in and remember the token
  logout                        forget the saved token
  register <username> <role>    create an account (admin only)
  passwd                        change your password
  upload <path>...              upload files; directories are sent as zip
  download <name> [dest]        download a stored file
  health                        show server status
`

// stdin is shared so that buffered input is not lost between prompts.
var stdin = bufio.NewReader(os.Stdin)

func main() {
	fs := flag.NewFlagSet("depot", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	server := fs.String("server", envOr("DEPOT_SERVER", "http://localhost:8080"), "server base URL")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *server, fs.Arg(0), fs.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, server, cmd string, args []string) error {
	session, err := client.DefaultSession()
	if err != nil {
		return err
	}
	token, err := session.Load()
	if err != nil {
		return err
	}
	if env := os.Getenv("DEPOT_TOKEN"); env != "" {
		token = env
	}
	c := client.New(server, client.WithToken(token))

	switch cmd {
	case "login":
		return login(ctx, c, session, args)
	case "logout":
		if err := session.Clear(); err != nil {
			return err
		}
		fmt.Println("✓ Logged out")
		return nil
	case "register":
		return register(ctx, c, args)
	case "passwd":
		return changePassword(ctx, c)
	case "upload":
		return upload(ctx, c, args)
	case "download":
		return download(ctx, c, args)
	case "health":
		status, err := c.Health(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("server %s: %s\n", server, status)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func login(ctx context.Context, c *client.Client, session *client.Session, args []string) error {
	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		fmt.Print("Username: ")
		line, err := stdin.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		username = strings.TrimSpace(line)
	}

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, client.DefaultTimeout)
	defer cancel()
	token, err := c.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if err := session.Save(token); err != nil {
		return err
	}
	fmt.Printf("✓ Logged in as %s\n", username)
	return nil
}

func register(ctx context.Context, c *client.Client, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: depot register <username> <admin|user>")
	}
	password, err := promptPassword("Password for new account: ")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, client.DefaultTimeout)
	defer cancel()
	if err := c.Register(ctx, args[0], password, args[1]); err != nil {
		return err
	}
	fmt.Printf("✓ Registered %s (%s)\n", args[0], args[1])
	return nil
}

func changePassword(ctx context.Context, c *client.Client) error {
	password, err := promptPassword("New password: ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword("Repeat new password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}

	ctx, cancel := context.WithTimeout(ctx, client.DefaultTimeout)
	defer cancel()
	if err := c.ChangePassword(ctx, password); err != nil {
		return err
	}
	fmt.Println("✓ Password changed")
	return nil
}

func upload(ctx context.Context, c *client.Client, args []string) error {
	paths, err := client.ParsePaths(args)
	if err != nil {
		return err
	}
	sources, err := client.SourcesFor(paths)
	if err != nil {
		return err
	}

	result, err := c.Upload(ctx, sources...)
	if err != nil {
		return err
	}
	for _, f := range result.Files {
		fmt.Printf("✓ %s → %s (%d bytes)\n", f.Filename, f.StoredName, f.Size)
	}
	return nil
}

func download(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: depot download <name> [dest]")
	}

	tmp, err := os.CreateTemp(".", ".depot-download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	filename, n, err := c.Download(ctx, args[0], tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	dest := filename
	if len(args) == 2 {
		dest = args[1]
		if info, err := os.Stat(dest); err == nil && info.IsDir() {
			dest = filepath.Join(dest, filename)
		}
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to save %s: %w", dest, err)
	}
	fmt.Printf("✓ Saved %s (%d bytes)\n", dest, n)
	return nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := stdin.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	pw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
