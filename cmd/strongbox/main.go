package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"strongbox/internal/app"
	"strongbox/internal/config"
	"strongbox/internal/engine"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Upload", "Sweep").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(context.Background(), cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// currentActor builds the acting identity from the persistent flags,
// falling back to the STRONGBOX_ACTOR environment variable.
func currentActor(cmd *cobra.Command) (engine.Actor, error) {
	id, _ := cmd.Flags().GetString("actor")
	if id == "" {
		id = os.Getenv("STRONGBOX_ACTOR")
	}
	if id == "" {
		return engine.Actor{}, fmt.Errorf("no actor: use --actor or set STRONGBOX_ACTOR")
	}

	role, _ := cmd.Flags().GetString("role")
	switch engine.Role(role) {
	case engine.RoleAdmin, engine.RoleMember, engine.RoleGuest:
	default:
		return engine.Actor{}, fmt.Errorf("unknown role %q (admin, member or guest)", role)
	}
	return engine.Actor{ID: id, Role: engine.Role(role)}, nil
}

// parseRef parses a "file:ID" or "folder:ID" target argument.
func parseRef(s string) (engine.Ref, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return engine.Ref{}, fmt.Errorf("invalid target %q (want file:ID or folder:ID)", s)
	}
	switch kind {
	case "file":
		return engine.FileRef(id), nil
	case "folder":
		return engine.FolderRef(id), nil
	default:
		return engine.Ref{}, fmt.Errorf("invalid target kind %q (want file or folder)", kind)
	}
}

// readPassphrase prompts for the keyring passphrase, preferring the
// STRONGBOX_PASSPHRASE environment variable for scripted use.
func readPassphrase(confirm bool) (string, error) {
	if p := os.Getenv("STRONGBOX_PASSPHRASE"); p != "" {
		return p, nil
	}

	fmt.Fprint(os.Stderr, "Passphrase: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if len(b) == 0 {
		return "", fmt.Errorf("empty passphrase")
	}

	if confirm {
		fmt.Fprint(os.Stderr, "Confirm passphrase: ")
		b2, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		if string(b) != string(b2) {
			return "", fmt.Errorf("passphrases do not match")
		}
	}

	return string(b), nil
}

// unlock prompts for the passphrase and unlocks the app's keyring.
func unlock(a *app.App) error {
	if !a.KeyringConfigured() {
		return fmt.Errorf("no keyring configured: run 'strongbox keys init' first")
	}
	p, err := readPassphrase(false)
	if err != nil {
		return err
	}
	return a.UnlockKeyring(p)
}

// parseTimeFlag parses an optional RFC 3339 flag value.
func parseTimeFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s (want RFC 3339): %w", name, err)
	}
	return &t, nil
}

var rootCmd = &cobra.Command{
	Use:   "strongbox",
	Short: "Encrypted file storage and sharing",
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

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
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

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Blob Store: %s\n", cfg.Blob.Type)
		fmt.Printf("Database:   %s\n", cfg.Database.Type)
		fmt.Printf("Keyring:    %s\n", cfg.Keyring.Path)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the master keyring",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a passphrase-protected keyring",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("SetupKeyring")
		if err != nil {
			return err
		}
		defer a.Close()

		if a.KeyringConfigured() {
			return fmt.Errorf("keyring already exists")
		}

		p, err := readPassphrase(true)
		if err != nil {
			return err
		}
		if err := a.SetupKeyring(p); err != nil {
			return fmt.Errorf("creating keyring: %w", err)
		}

		fmt.Println("Keyring created.")
		return nil
	},
}

var keysRotateCmd = &cobra.Command{
	Use:   "rotate [OWNER]",
	Short: "Rotate an owner's master key and rewrap their versions",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		ownerID := actor.ID
		if len(args) > 0 {
			ownerID = args[0]
		}

		a, err := newApp("RotateMasterKey")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlock(a); err != nil {
			return err
		}

		if err := a.Engine().RotateMasterKey(context.Background(), actor, ownerID); err != nil {
			return fmt.Errorf("rotating master key: %w", err)
		}

		fmt.Printf("Master key rotated for %s\n", ownerID)
		return nil
	},
}

// root command: ensure and print the actor's root folder
var rootFolderCmd = &cobra.Command{
	Use:   "root",
	Short: "Print the actor's root folder ID (creating it if needed)",
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("EnsureRoot")
		if err != nil {
			return err
		}
		defer a.Close()

		folder, err := a.Engine().EnsureRoot(context.Background(), actor)
		if err != nil {
			return err
		}

		fmt.Println(folder.ID)
		return nil
	},
}

// mkdir command
var mkdirCmd = &cobra.Command{
	Use:   "mkdir NAME",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("CreateFolder")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		parentID, _ := cmd.Flags().GetString("parent")
		if parentID == "" {
			root, err := a.Engine().EnsureRoot(ctx, actor)
			if err != nil {
				return err
			}
			parentID = root.ID
		}

		folder, err := a.Engine().CreateFolder(ctx, actor, parentID, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Created folder %s (%s)\n", folder.Name, folder.ID)
		return nil
	},
}

// ls command
var lsCmd = &cobra.Command{
	Use:   "ls [FOLDER_ID]",
	Short: "List folder contents",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("List")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		var folderID string
		if len(args) > 0 {
			folderID = args[0]
		} else {
			root, err := a.Engine().EnsureRoot(ctx, actor)
			if err != nil {
				return err
			}
			folderID = root.ID
		}

		cursor, _ := cmd.Flags().GetString("cursor")
		limit, _ := cmd.Flags().GetInt("limit")

		page, err := a.Engine().List(ctx, actor, folderID, cursor, limit)
		if err != nil {
			return err
		}

		if len(page.Entries) == 0 {
			fmt.Println("Empty folder.")
			return nil
		}

		for _, e := range page.Entries {
			if e.Ref.Kind == engine.KindFolder {
				fmt.Printf("d  %-36s  %s\n", e.Ref.ID, e.Name)
			} else {
				fmt.Printf("f  %-36s  %s  v%d  %d bytes\n", e.Ref.ID, e.Name, e.Version, e.Size)
			}
		}
		if page.Cursor != "" {
			fmt.Printf("\nMore results: --cursor %s\n", page.Cursor)
		}
		return nil
	},
}

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload PATH",
	Short: "Encrypt and store a local file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("Upload")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlock(a); err != nil {
			return err
		}

		ctx := context.Background()
		folderID, _ := cmd.Flags().GetString("folder")
		if folderID == "" {
			root, err := a.Engine().EnsureRoot(ctx, actor)
			if err != nil {
				return err
			}
			folderID = root.ID
		}
		name, _ := cmd.Flags().GetString("name")

		file, version, err := a.UploadFile(ctx, actor, folderID, args[0], name)
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}

		fmt.Printf("Uploaded %s (%s) version %d\n", file.Name, file.ID, version.Version)
		return nil
	},
}

// download command
var downloadCmd = &cobra.Command{
	Use:   "download FILE_ID",
	Short: "Decrypt and retrieve a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("Download")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlock(a); err != nil {
			return err
		}

		version, _ := cmd.Flags().GetInt64("version")
		out, _ := cmd.Flags().GetString("out")

		w := os.Stdout
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating %s: %w", out, err)
			}
			defer f.Close()
			w = f
		}

		file, err := a.DownloadFile(context.Background(), actor, args[0], version, w)
		if err != nil {
			return fmt.Errorf("download failed: %w", err)
		}

		if out != "" {
			fmt.Fprintf(os.Stderr, "Downloaded %s to %s\n", file.Name, out)
		}
		return nil
	},
}

// mv command
var mvCmd = &cobra.Command{
	Use:   "mv FILE_ID FOLDER_ID",
	Short: "Move a file to another folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("MoveFile")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Engine().MoveFile(context.Background(), actor, args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("Moved.")
		return nil
	},
}

var mvdirCmd = &cobra.Command{
	Use:   "mvdir FOLDER_ID PARENT_ID",
	Short: "Move a folder under another parent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("MoveFolder")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Engine().MoveFolder(context.Background(), actor, args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("Moved.")
		return nil
	},
}

// rm / purge commands
var rmCmd = &cobra.Command{
	Use:   "rm FILE_ID",
	Short: "Soft-delete a file (recoverable until purged)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("Delete")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Engine().Delete(context.Background(), actor, args[0]); err != nil {
			return err
		}
		fmt.Println("Deleted.")
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge FILE_ID",
	Short: "Permanently remove a file and its content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("Purge")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Engine().Purge(context.Background(), actor, args[0]); err != nil {
			return err
		}
		fmt.Println("Purged.")
		return nil
	},
}

// lock / unlock commands
var lockCmd = &cobra.Command{
	Use:   "lock FILE_ID",
	Short: "Acquire an edit lock on a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		ttl, _ := cmd.Flags().GetDuration("ttl")

		a, err := newApp("Lock")
		if err != nil {
			return err
		}
		defer a.Close()

		lock, err := a.Engine().Lock(context.Background(), actor, args[0], ttl)
		if err != nil {
			return err
		}

		fmt.Printf("Locked until %s\n", lock.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock FILE_ID",
	Short: "Release an edit lock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("Unlock")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Engine().Unlock(context.Background(), actor, args[0]); err != nil {
			return err
		}
		fmt.Println("Unlocked.")
		return nil
	},
}

// grant / revoke commands
var grantCmd = &cobra.Command{
	Use:   "grant TARGET",
	Short: "Grant permissions on a file or folder",
	Long: `Grant permissions on a target (file:ID or folder:ID) to a user or role.

Examples:
  strongbox grant folder:abc --subject user:bob --perms read,write
  strongbox grant file:xyz --subject role:guest --perms read --deny`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		target, err := parseRef(args[0])
		if err != nil {
			return err
		}

		subject, _ := cmd.Flags().GetString("subject")
		subjKind, subjID, ok := strings.Cut(subject, ":")
		if !ok || (subjKind != "user" && subjKind != "role") || subjID == "" {
			return fmt.Errorf("invalid --subject %q (want user:ID or role:NAME)", subject)
		}

		permsCSV, _ := cmd.Flags().GetString("perms")
		var perms []engine.Permission
		for _, p := range strings.Split(permsCSV, ",") {
			switch perm := engine.Permission(strings.TrimSpace(p)); perm {
			case engine.PermRead, engine.PermWrite, engine.PermShare, engine.PermDelete:
				perms = append(perms, perm)
			default:
				return fmt.Errorf("unknown permission %q", p)
			}
		}
		if len(perms) == 0 {
			return fmt.Errorf("no permissions: use --perms read,write,share,delete")
		}

		effect := engine.Allow
		if deny, _ := cmd.Flags().GetBool("deny"); deny {
			effect = engine.Deny
		}

		expiresAt, err := parseTimeFlag(cmd, "expires")
		if err != nil {
			return err
		}

		a, err := newApp("GrantAccess")
		if err != nil {
			return err
		}
		defer a.Close()

		grant, err := a.Engine().GrantAccess(context.Background(), actor, target,
			engine.SubjectKind(subjKind), subjID, perms, effect, expiresAt)
		if err != nil {
			return err
		}

		fmt.Printf("Grant %s created\n", grant.ID)
		return nil
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke TARGET GRANT_ID",
	Short: "Remove a grant",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		target, err := parseRef(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("RevokeAccess")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Engine().RevokeAccess(context.Background(), actor, target, args[1]); err != nil {
			return err
		}
		fmt.Println("Revoked.")
		return nil
	},
}

// share command
var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Manage share links",
}

var shareIssueCmd = &cobra.Command{
	Use:   "issue TARGET",
	Short: "Issue a share link for a file or folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		target, err := parseRef(args[0])
		if err != nil {
			return err
		}

		scope := engine.ScopeReadOnly
		if rw, _ := cmd.Flags().GetBool("read-write"); rw {
			scope = engine.ScopeReadWrite
		}

		expiresAt, err := parseTimeFlag(cmd, "expires")
		if err != nil {
			return err
		}

		var maxUses *int64
		if n, _ := cmd.Flags().GetInt64("max-uses"); n > 0 {
			maxUses = &n
		}

		a, err := newApp("IssueLink")
		if err != nil {
			return err
		}
		defer a.Close()

		link, err := a.Engine().IssueLink(context.Background(), actor, target, scope, expiresAt, maxUses)
		if err != nil {
			return err
		}

		fmt.Println(link.Token)
		return nil
	},
}

var shareInfoCmd = &cobra.Command{
	Use:   "info TOKEN",
	Short: "Resolve a share link (consumes one use)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ResolveLink")
		if err != nil {
			return err
		}
		defer a.Close()

		link, err := a.Engine().ResolveLink(context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Target: %s:%s\n", link.Target.Kind, link.Target.ID)
		fmt.Printf("Scope:  %s\n", link.Scope)
		if link.ExpiresAt != nil {
			fmt.Printf("Expires: %s\n", link.ExpiresAt.Format(time.RFC3339))
		}
		if link.UsesLeft != nil {
			fmt.Printf("Uses left: %d\n", *link.UsesLeft)
		}
		return nil
	},
}

var shareDownloadCmd = &cobra.Command{
	Use:   "download TOKEN",
	Short: "Download a file through a share link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("DownloadViaLink")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlock(a); err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		w := os.Stdout
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating %s: %w", out, err)
			}
			defer f.Close()
			w = f
		}

		file, err := a.Engine().DownloadViaLink(context.Background(), args[0], w)
		if err != nil {
			return fmt.Errorf("download failed: %w", err)
		}

		if out != "" {
			fmt.Fprintf(os.Stderr, "Downloaded %s to %s\n", file.Name, out)
		}
		return nil
	},
}

var shareRevokeCmd = &cobra.Command{
	Use:   "revoke TOKEN",
	Short: "Revoke a share link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("RevokeLink")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Engine().RevokeLink(context.Background(), actor, args[0]); err != nil {
			return err
		}
		fmt.Println("Revoked.")
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history TARGET",
	Short: "View a file or folder's audit history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		target, err := parseRef(args[0])
		if err != nil {
			return err
		}

		from, err := parseTimeFlag(cmd, "from")
		if err != nil {
			return err
		}
		to, err := parseTimeFlag(cmd, "to")
		if err != nil {
			return err
		}

		fromT := time.Time{}
		if from != nil {
			fromT = *from
		}
		toT := time.Now().UTC()
		if to != nil {
			toT = *to
		}

		cursor, _ := cmd.Flags().GetString("cursor")
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("History")
		if err != nil {
			return err
		}
		defer a.Close()

		page, err := a.Engine().History(context.Background(), actor, target, fromT, toT, cursor, limit)
		if err != nil {
			return err
		}

		if len(page.Entries) == 0 {
			fmt.Println("No history.")
			return nil
		}

		for _, e := range page.Entries {
			fmt.Printf("%s  %-12s  %-10s  %s  %s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"),
				e.Action,
				e.Result,
				e.Actor,
				e.Detail,
			)
		}
		if page.Cursor != "" {
			fmt.Printf("\nMore results: --cursor %s\n", page.Cursor)
		}
		return nil
	},
}

// versions command
var versionsCmd = &cobra.Command{
	Use:   "versions FILE_ID",
	Short: "View a file's version history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("Versions")
		if err != nil {
			return err
		}
		defer a.Close()

		versions, err := a.Engine().Versions(context.Background(), actor, args[0])
		if err != nil {
			return err
		}

		if len(versions) == 0 {
			fmt.Println("No versions.")
			return nil
		}

		for _, v := range versions {
			fmt.Printf("v%d  %s  %d bytes  %s  by %s\n",
				v.Version,
				v.ContentHash[:12],
				v.Size,
				v.CreatedAt.Format("2006-01-02 15:04:05"),
				v.CreatedBy,
			)
		}
		return nil
	},
}

// activity command
var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "View per-actor activity counts (admin only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := currentActor(cmd)
		if err != nil {
			return err
		}

		from, err := parseTimeFlag(cmd, "from")
		if err != nil {
			return err
		}
		to, err := parseTimeFlag(cmd, "to")
		if err != nil {
			return err
		}

		fromT := time.Time{}
		if from != nil {
			fromT = *from
		}
		toT := time.Now().UTC()
		if to != nil {
			toT = *to
		}

		a, err := newApp("Activity")
		if err != nil {
			return err
		}
		defer a.Close()

		buckets, err := a.Engine().Activity(context.Background(), actor, fromT, toT)
		if err != nil {
			return err
		}

		if len(buckets) == 0 {
			fmt.Println("No activity.")
			return nil
		}

		for _, b := range buckets {
			fmt.Printf("%s  %-20s  %-12s  %d\n", b.Day, b.Actor, b.Action, b.Count)
		}
		return nil
	},
}

// gc command
var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove blobs no longer referenced by any version",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Sweep")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Sweep(context.Background())
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}

		fmt.Printf("Scanned %d blob(s), %d orphaned, %d deleted\n",
			report.Scanned, report.Orphans, report.Deleted)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("actor", "", "Acting user ID (or set STRONGBOX_ACTOR)")
	rootCmd.PersistentFlags().String("role", "member", "Acting role: admin, member or guest")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)
	keysCmd.AddCommand(keysRotateCmd)

	// share subcommands
	shareCmd.AddCommand(shareIssueCmd)
	shareIssueCmd.Flags().Bool("read-write", false, "Allow uploads through the link")
	shareIssueCmd.Flags().String("expires", "", "Expiry time (RFC 3339)")
	shareIssueCmd.Flags().Int64("max-uses", 0, "Maximum number of uses (0 = unlimited)")
	shareCmd.AddCommand(shareInfoCmd)
	shareCmd.AddCommand(shareDownloadCmd)
	shareDownloadCmd.Flags().StringP("out", "o", "", "Write to file instead of stdout")
	shareCmd.AddCommand(shareRevokeCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(rootFolderCmd)
	rootCmd.AddCommand(mkdirCmd)
	mkdirCmd.Flags().String("parent", "", "Parent folder ID (default: actor's root)")
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().String("cursor", "", "Resume listing from this cursor")
	lsCmd.Flags().IntP("limit", "n", 100, "Maximum entries per page")
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().String("folder", "", "Destination folder ID (default: actor's root)")
	uploadCmd.Flags().String("name", "", "Stored name (default: local base name)")
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().Int64("version", 0, "Version to download (0 = current)")
	downloadCmd.Flags().StringP("out", "o", "", "Write to file instead of stdout")
	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(mvdirCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(lockCmd)
	lockCmd.Flags().Duration("ttl", 15*time.Minute, "Lock duration")
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(grantCmd)
	grantCmd.Flags().String("subject", "", "Grant subject: user:ID or role:NAME")
	grantCmd.Flags().String("perms", "", "Comma-separated permissions: read,write,share,delete")
	grantCmd.Flags().Bool("deny", false, "Deny instead of allow")
	grantCmd.Flags().String("expires", "", "Expiry time (RFC 3339)")
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().String("from", "", "Start time (RFC 3339)")
	historyCmd.Flags().String("to", "", "End time (RFC 3339)")
	historyCmd.Flags().String("cursor", "", "Resume from this cursor")
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum entries per page")
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(activityCmd)
	activityCmd.Flags().String("from", "", "Start time (RFC 3339)")
	activityCmd.Flags().String("to", "", "End time (RFC 3339)")
	rootCmd.AddCommand(gcCmd)
}
