package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/goliatone/go-ucenter"
	"github.com/goliatone/go-ucenter/activitymap"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"
)

var (
	dsn   string
	debug bool
)

var rootCmd = &cobra.Command{
	Use:           "ucenter",
	Short:         "ucenter - account center operator tool",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "file:ucenter.db?cache=shared", "sqlite data source name")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(migrateCmd(), registerCmd(), loginCmd(), inviteCmd(), statusCmd(), reviewCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

type app struct {
	db     *bun.DB
	uc     *ucenter.UCenter
	logger *zap.Logger
}

func (a *app) Close() {
	_ = a.logger.Sync()
	_ = a.db.Close()
}

func open() (*app, error) {
	cfg, err := ucenter.LoadConfig()
	if err != nil {
		return nil, err
	}

	var logger *zap.Logger
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())

	uc, err := ucenter.New(db, cfg,
		ucenter.WithLoggerProvider(ucenter.ZapLoggerProvider(logger)),
		ucenter.WithActivitySink(activityLogger(logger.Named("ucenter.activity"))),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &app{db: db, uc: uc, logger: logger}, nil
}

// activityLogger writes every account center event as a structured log line.
func activityLogger(logger *zap.Logger) ucenter.ActivitySink {
	return activitymap.Sink(func(n activitymap.Normalized) error {
		logger.Info(n.Verb,
			zap.String("actor_id", n.ActorID),
			zap.String("object_type", n.ObjectType),
			zap.String("object_id", n.ObjectID),
			zap.String("channel", n.Channel),
			zap.Any("metadata", n.Metadata),
			zap.Time("occurred_at", n.OccurredAt),
		)
		return nil
	})
}

func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := open()
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a, args)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the account center tables",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			if err := a.uc.Migrate(ctx, a.db); err != nil {
				return err
			}
			fmt.Println("schema ready")
			return nil
		}),
	}
}

func registerCmd() *cobra.Command {
	var (
		registerType int
		inviteCode   string
		ip           string
	)
	cmd := &cobra.Command{
		Use:   "register <account> <password>",
		Short: "Register an account",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			id, err := a.uc.Register(ctx, ucenter.RegisterInput{
				RegisterType: ucenter.IdentityType(registerType),
				Account:      args[0],
				Password:     args[1],
				InviteCode:   inviteCode,
			}, ip)
			if err != nil {
				return fmt.Errorf("register: %s", ucenter.Reason(err))
			}
			return printJSON(map[string]any{"id": id})
		}),
	}
	cmd.Flags().IntVarP(&registerType, "type", "t", int(ucenter.IdentityUsername), "register type: 1 mobile, 2 email, 3 username")
	cmd.Flags().StringVar(&inviteCode, "invite", "", "invite code")
	cmd.Flags().StringVar(&ip, "ip", "127.0.0.1", "client address")
	return cmd
}

func loginCmd() *cobra.Command {
	var (
		loginType int
		ip        string
		ua        string
	)
	cmd := &cobra.Command{
		Use:   "login <account> <password>",
		Short: "Verify credentials and open a session",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			account, err := a.uc.Login(ctx, ucenter.LoginInput{
				LoginType: ucenter.IdentityType(loginType),
				Account:   args[0],
				Password:  args[1],
			}, ip, ua)
			if err != nil {
				return fmt.Errorf("login: %s", ucenter.Reason(err))
			}
			return printJSON(account)
		}),
	}
	cmd.Flags().IntVarP(&loginType, "type", "t", int(ucenter.IdentityUsername), "login type: 1 mobile, 2 email, 3 username")
	cmd.Flags().StringVar(&ip, "ip", "127.0.0.1", "client address")
	cmd.Flags().StringVar(&ua, "ua", "ucenter-cli", "client user agent")
	return cmd
}

func inviteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Encode and decode invite codes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "encode <id>",
		Short: "Print the invite code of an account",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(_ context.Context, a *app, args []string) error {
			id, err := cast.ToInt64E(args[0])
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			code, err := a.uc.GetInviteCode(id)
			if err != nil {
				return err
			}
			fmt.Println(code)
			return nil
		}),
	}, &cobra.Command{
		Use:   "decode <code>",
		Short: "Print the account id behind an invite code",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(_ context.Context, a *app, args []string) error {
			id, err := a.uc.ParseInviteCode(args[0])
			if err != nil {
				return fmt.Errorf("decode: %s", ucenter.Reason(err))
			}
			fmt.Println(id)
			return nil
		}),
	})
	return cmd
}

func statusCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Change the status of an account (0 pending, 1 active, 2 disabled, 3 rejected)",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			id, err := cast.ToInt64E(args[0])
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			status, err := cast.ToIntE(args[1])
			if err != nil {
				return fmt.Errorf("invalid status %q", args[1])
			}
			account, err := a.uc.ChangeStatus(ctx, ucenter.ActorRef{ID: "cli", Type: "operator"}, id,
				ucenter.AccountStatus(status), ucenter.WithTransitionReason(reason))
			if err != nil {
				return fmt.Errorf("status: %s", ucenter.Reason(err))
			}
			return printJSON(account)
		}),
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with the change")
	return cmd
}

func reviewCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:       "review <uid> <approve|reject>",
		Short:     "Review a pending real-name submission",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"approve", "reject"},
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			uid, err := cast.ToInt64E(args[0])
			if err != nil {
				return fmt.Errorf("invalid uid %q", args[0])
			}

			var decision ucenter.ReviewDecision
			switch args[1] {
			case "approve":
				decision = ucenter.ReviewApprove
			case "reject":
				decision = ucenter.ReviewReject
			default:
				return fmt.Errorf("unknown decision %q", args[1])
			}

			record, err := a.uc.ConfirmRealname(ctx, uid, decision, comment)
			if err != nil {
				return fmt.Errorf("review: %s", ucenter.Reason(err))
			}
			return printJSON(record)
		}),
	}
	cmd.Flags().StringVar(&comment, "comment", "", "review comment")
	return cmd
}
