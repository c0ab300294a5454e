package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hzrd149/blossom-drive-client/internal/app"
	"github.com/hzrd149/blossom-drive-client/internal/config"
	"github.com/hzrd149/blossom-drive-client/internal/drive"
	"github.com/hzrd149/blossom-drive-client/internal/relay"
	"github.com/hzrd149/blossom-drive-client/internal/upload"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "put", "sync").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// promptPassword reads a password from the terminal without echo.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

// openDrive opens the identified drive from the local cache. Encrypted
// drives are unlocked with a password prompt; the second return value is
// non-nil exactly when --encrypted was given.
func openDrive(a *app.App, identifier string, encrypted bool) (*drive.Drive, *drive.EncryptedDrive, error) {
	if !encrypted {
		d, err := a.OpenDrive(identifier)
		return d, nil, err
	}

	ed, err := a.OpenEncryptedDrive(identifier)
	if err != nil {
		return nil, nil, err
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return nil, nil, err
	}
	if err := ed.Unlock(password); err != nil {
		return nil, nil, fmt.Errorf("unlocking drive: %w", err)
	}
	return ed.Drive, ed, nil
}

func driveFlags(cmd *cobra.Command) (identifier string, encrypted bool, err error) {
	identifier, _ = cmd.Flags().GetString("drive")
	encrypted, _ = cmd.Flags().GetBool("encrypted")
	if identifier == "" {
		return "", false, fmt.Errorf("--drive is required")
	}
	return identifier, encrypted, nil
}

var rootCmd = &cobra.Command{
	Use:   "blossom",
	Short: "Blossom drive client",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		// Generate a fresh nostr key unless one was supplied.
		key, _ := cmd.Flags().GetString("key")
		if key == "" {
			signer, err := relay.GenerateKeySigner()
			if err != nil {
				return fmt.Errorf("generating key: %w", err)
			}
			key = signer.PrivateKey()
		}

		cfg := config.NewConfig(key, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		signer, err := relay.NewKeySigner(key)
		if err != nil {
			return fmt.Errorf("invalid key: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Public Key: %s\n", signer.PublicKey())
		fmt.Printf("Base Dir:   %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		signer, err := relay.NewKeySigner(cfg.PrivateKey)
		if err != nil {
			return fmt.Errorf("invalid key in config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Public Key: %s\n", signer.PublicKey())
		fmt.Printf("Relays:     %s\n", strings.Join(cfg.Relays, ", "))
		fmt.Printf("Servers:    %s\n", strings.Join(cfg.Servers, ", "))
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		return nil
	},
}

// drive command
var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Manage drives",
}

var driveCreateCmd = &cobra.Command{
	Use:   "create IDENTIFIER",
	Short: "Create and publish a new drive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")
		servers, _ := cmd.Flags().GetStringArray("server")
		encrypted, _ := cmd.Flags().GetBool("encrypted")

		a, err := newApp("drive-create")
		if err != nil {
			return err
		}
		defer a.Close()

		var d *drive.Drive
		if encrypted {
			password, err := promptPassword("Password: ")
			if err != nil {
				return err
			}
			confirm, err := promptPassword("Confirm password: ")
			if err != nil {
				return err
			}
			if password != confirm {
				return fmt.Errorf("passwords do not match")
			}
			ed, err := a.CreateEncryptedDrive(args[0], name, description, servers, password)
			if err != nil {
				return fmt.Errorf("creating drive: %w", err)
			}
			d = ed.Drive
		} else {
			d, err = a.CreateDrive(args[0], name, description, servers)
			if err != nil {
				return fmt.Errorf("creating drive: %w", err)
			}
		}

		ev, err := d.Save(cmd.Context())
		if err != nil {
			return fmt.Errorf("publishing drive: %w", err)
		}

		fmt.Printf("Created drive %s (event %s)\n", args[0], ev.ID)
		return nil
	},
}

var driveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List locally known drives",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("drive-list")
		if err != nil {
			return err
		}
		defer a.Close()

		refs, err := a.Store().ListDrives()
		if err != nil {
			return err
		}

		if len(refs) == 0 {
			fmt.Println("No drives known. Run 'blossom drive sync IDENTIFIER' first.")
			return nil
		}

		for _, r := range refs {
			kind := "public"
			if r.Kind == drive.KindEncryptedDrive {
				kind = "encrypted"
			}
			fmt.Printf("%-9s  %s  %s\n", kind, r.UpdatedAt.Format("2006-01-02 15:04:05"), r.Identifier)
		}
		return nil
	},
}

var driveSyncCmd = &cobra.Command{
	Use:   "sync IDENTIFIER",
	Short: "Fetch the latest drive manifest from the relays",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypted, _ := cmd.Flags().GetBool("encrypted")

		a, err := newApp("drive-sync")
		if err != nil {
			return err
		}
		defer a.Close()

		changed, err := a.SyncIdentifier(cmd.Context(), args[0], encrypted)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		if changed {
			fmt.Printf("Drive %s updated\n", args[0])
		} else {
			fmt.Printf("Drive %s already up to date\n", args[0])
		}
		return nil
	},
}

// ls command
var lsCmd = &cobra.Command{
	Use:   "ls [PATH]",
	Short: "List a drive folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		identifier, encrypted, err := driveFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("ls")
		if err != nil {
			return err
		}
		defer a.Close()

		d, _, err := openDrive(a, identifier, encrypted)
		if err != nil {
			return err
		}

		target := "/"
		if len(args) > 0 {
			target = args[0]
		}

		folder, err := d.Folder(target, false)
		if err != nil {
			return err
		}

		for _, node := range folder.Children() {
			if f, ok := node.(*drive.File); ok {
				fmt.Printf("%12d  %s  %s\n", f.Size, f.SHA256[:12], f.Name)
			} else {
				fmt.Printf("%12s  %-12s  %s/\n", "", "", node.NodeName())
			}
		}
		return nil
	},
}

// mkdir command
var mkdirCmd = &cobra.Command{
	Use:   "mkdir PATH",
	Short: "Create a folder in a drive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identifier, encrypted, err := driveFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("mkdir")
		if err != nil {
			return err
		}
		defer a.Close()

		d, _, err := openDrive(a, identifier, encrypted)
		if err != nil {
			return err
		}

		if _, err := d.Folder(args[0], true); err != nil {
			return err
		}
		if _, err := d.Save(cmd.Context()); err != nil {
			return fmt.Errorf("publishing manifest: %w", err)
		}

		fmt.Printf("Created %s\n", args[0])
		return nil
	},
}

// mv command
var mvCmd = &cobra.Command{
	Use:   "mv SRC DEST",
	Short: "Move or rename within a drive",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		identifier, encrypted, err := driveFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("mv")
		if err != nil {
			return err
		}
		defer a.Close()

		d, _, err := openDrive(a, identifier, encrypted)
		if err != nil {
			return err
		}

		if err := d.Move(args[0], args[1]); err != nil {
			return err
		}
		if _, err := d.Save(cmd.Context()); err != nil {
			return fmt.Errorf("publishing manifest: %w", err)
		}

		fmt.Printf("Moved %s -> %s\n", args[0], args[1])
		return nil
	},
}

// rm command
var rmCmd = &cobra.Command{
	Use:   "rm PATH",
	Short: "Remove a file or folder from a drive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identifier, encrypted, err := driveFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("rm")
		if err != nil {
			return err
		}
		defer a.Close()

		d, _, err := openDrive(a, identifier, encrypted)
		if err != nil {
			return err
		}

		if err := d.Remove(args[0]); err != nil {
			return err
		}
		if _, err := d.Save(cmd.Context()); err != nil {
			return fmt.Errorf("publishing manifest: %w", err)
		}

		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

// url command
var urlCmd = &cobra.Command{
	Use:   "url PATH",
	Short: "Print the download URL for a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identifier, encrypted, err := driveFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("url")
		if err != nil {
			return err
		}
		defer a.Close()

		d, _, err := openDrive(a, identifier, encrypted)
		if err != nil {
			return err
		}

		u, err := d.GetFileURL(args[0])
		if err != nil {
			return err
		}

		fmt.Println(u)
		return nil
	},
}

// get command
var getCmd = &cobra.Command{
	Use:   "get PATH [OUT]",
	Short: "Download a file from a drive",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		identifier, encrypted, err := driveFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("get")
		if err != nil {
			return err
		}
		defer a.Close()

		d, ed, err := openDrive(a, identifier, encrypted)
		if err != nil {
			return err
		}

		var data *drive.FileData
		if ed != nil {
			data, err = ed.DownloadFile(cmd.Context(), args[0])
		} else {
			data, err = d.DownloadFile(cmd.Context(), args[0])
		}
		if err != nil {
			return fmt.Errorf("downloading %s: %w", args[0], err)
		}

		out := data.Name
		if len(args) > 1 {
			out = args[1]
		}
		if out == "-" {
			_, err := os.Stdout.Write(data.Data)
			return err
		}
		if err := os.WriteFile(out, data.Data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}

		fmt.Printf("Downloaded %s (%d bytes)\n", out, len(data.Data))
		return nil
	},
}

// put command
var putCmd = &cobra.Command{
	Use:   "put LOCALPATH...",
	Short: "Upload local files or directories to a drive",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identifier, encrypted, err := driveFlags(cmd)
		if err != nil {
			return err
		}
		dest, _ := cmd.Flags().GetString("dest")

		a, err := newApp("put")
		if err != nil {
			return err
		}
		defer a.Close()

		d, ed, err := openDrive(a, identifier, encrypted)
		if err != nil {
			return err
		}

		var target upload.Drive = d
		if ed != nil {
			target = ed
		}
		batch := a.NewBatch(target)

		for _, arg := range args {
			abs, err := filepath.Abs(arg)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			info, err := os.Stat(abs)
			if err != nil {
				return err
			}
			if info.IsDir() {
				root := dest
				if root == "" {
					root = "/" + filepath.Base(abs)
				}
				if err := batch.AddFS(os.DirFS(abs), ".", root); err != nil {
					return fmt.Errorf("reading %s: %w", arg, err)
				}
				continue
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				return err
			}
			destPath := dest
			if destPath == "" {
				destPath = "/" + filepath.Base(abs)
			} else if strings.HasSuffix(destPath, "/") {
				destPath = destPath + filepath.Base(abs)
			}
			batch.AddFile(upload.File{Name: filepath.Base(abs), Data: data}, destPath)
		}

		if batch.Len() == 0 {
			return errors.New("nothing to upload")
		}

		batch.OnProgress(func(overall float64) {
			fmt.Printf("\rUploading... %3.0f%%", overall*100)
		})

		if err := batch.Upload(cmd.Context()); err != nil {
			fmt.Println()
			return fmt.Errorf("upload failed: %w", err)
		}
		fmt.Println()

		// Per-server summary.
		servers := d.Servers()
		sort.Strings(servers)
		for _, s := range servers {
			fmt.Printf("%s: %3.0f%%\n", s, batch.ServerProgress(s)*100)
		}

		fmt.Printf("Uploaded %d file(s)\n", batch.Len())
		return nil
	},
}

// mirror command
var mirrorCmd = &cobra.Command{
	Use:   "mirror VAULT",
	Short: "Copy a drive's blobs into a configured vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identifier, encrypted, err := driveFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("mirror")
		if err != nil {
			return err
		}
		defer a.Close()

		// Encrypted drives mirror ciphertext blobs; the password is only
		// needed to learn which blobs the manifest references.
		d, _, err := openDrive(a, identifier, encrypted)
		if err != nil {
			return err
		}

		count, err := a.MirrorDrive(cmd.Context(), d, args[0])
		if err != nil {
			return fmt.Errorf("mirror failed after %d blob(s): %w", count, err)
		}

		fmt.Printf("Mirrored %d blob(s) to %s\n", count, args[0])
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("key", "", "Hex private key (default: generate a new one)")
	configCmd.AddCommand(configListCmd)

	// drive subcommands
	driveCmd.AddCommand(driveCreateCmd)
	driveCreateCmd.Flags().String("name", "", "Human readable drive name")
	driveCreateCmd.Flags().String("description", "", "Drive description")
	driveCreateCmd.Flags().StringArray("server", nil, "Blossom server URL (repeatable)")
	driveCreateCmd.Flags().BoolP("encrypted", "e", false, "Create an encrypted drive")
	driveCmd.AddCommand(driveListCmd)
	driveCmd.AddCommand(driveSyncCmd)
	driveSyncCmd.Flags().BoolP("encrypted", "e", false, "Sync an encrypted drive")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(driveCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(urlCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
	putCmd.Flags().String("dest", "", "Destination path inside the drive")
	rootCmd.AddCommand(mirrorCmd)

	// flags shared by drive-addressed commands
	for _, c := range []*cobra.Command{lsCmd, mkdirCmd, mvCmd, rmCmd, urlCmd, getCmd, putCmd, mirrorCmd} {
		c.Flags().StringP("drive", "d", "", "Drive identifier")
		c.Flags().BoolP("encrypted", "e", false, "Drive is encrypted")
	}
}
