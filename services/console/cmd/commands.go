package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"github.com/unibrain/erpconsole/pkg/config"
	"github.com/unibrain/erpconsole/pkg/errors"
	"github.com/unibrain/erpconsole/pkg/lifecycle"
	"github.com/unibrain/erpconsole/services/console/internal/guard"
	"github.com/unibrain/erpconsole/services/console/internal/navigation"
	"github.com/unibrain/erpconsole/services/console/internal/pages"
	"github.com/unibrain/erpconsole/services/console/internal/portal"
	"github.com/unibrain/erpconsole/services/console/internal/session"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	Version   = "1.0.0"
	BuildTime = "dev"
	appName   = "erpconsole"
)

// keyRuntime 服务上下文中运行时组件的键
const keyRuntime = "runtime"

type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "ERP console",
		Long: `erpconsole keeps one authenticated session against the ERP REST backend.

It provides:
- a local portal serving the ERP sections behind role based guards
- terminal commands to log in, inspect and end that session`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(
		serveCmd(flags),
		loginCmd(flags),
		logoutCmd(flags),
		whoamiCmd(flags),
		menuCmd(flags),
		registerCmd(flags),
		refreshCmd(flags),
		bypassHashCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s, devbypass: %t)\n",
					appName, Version, BuildTime, session.BypassCompiled)
			},
		},
	)
	return cmd
}

// withSession 加载配置、恢复会话后执行 fn，结束时关闭全部组件
func withSession(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, rt *runtime) error) error {
	cfg, err := loadConfig(flags.configPath, flags.logLevel)
	if err != nil {
		return err
	}
	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := rt.start(ctx); err != nil {
		return err
	}
	return fn(ctx, rt)
}

func serveCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local portal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags.configPath, flags.logLevel)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.HTTP.Addr()
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return buildService(cfg, addr).RunContext(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server.http host:port)")
	return cmd
}

// buildService 组装门户服务：启动时恢复会话并挂载路由，停止时关闭会话
func buildService(cfg *config.Config, addr string) *lifecycle.Service {
	app := fiber.New(portal.AppConfig(cfg.App.Name,
		time.Duration(cfg.Server.HTTP.ReadTimeout)*time.Second,
		time.Duration(cfg.Server.HTTP.WriteTimeout)*time.Second,
	))

	return lifecycle.NewBuilder(cfg.App.Name).
		WithAddress(addr).
		WithApp(app).
		OnStart(func(sc *lifecycle.ServiceContext) error {
			rt, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			if err := rt.start(context.Background()); err != nil {
				_ = rt.Close()
				return err
			}
			sc.Set(keyRuntime, rt)

			portal.New(portal.Options{
				Name:      cfg.App.Name,
				Sessions:  rt.sessions,
				Client:    rt.client,
				Evaluator: rt.evaluator,
				Paths:     guard.Paths{Login: cfg.Auth.LoginPath, Unauthorized: cfg.Auth.UnauthorizedPath},
				Logger:    rt.log.Named("portal"),
			}).Mount(sc.Service().App())
			return nil
		}).
		OnReady(func(sc *lifecycle.ServiceContext) error {
			rt, _ := lifecycle.Value[*runtime](sc, keyRuntime)
			rt.log.Info("门户已就绪",
				zap.String("address", sc.Service().Addr().String()),
				zap.String("backend", rt.client.BaseURL().String()),
				zap.String("session", rt.sessions.State().String()),
			)
			return nil
		}).
		OnStop(func(sc *lifecycle.ServiceContext) error {
			rt, ok := lifecycle.Value[*runtime](sc, keyRuntime)
			if !ok {
				return nil
			}
			return rt.Close()
		}).
		Build()
}

func loginCmd(flags *globalFlags) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the ERP backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return fmt.Errorf("--username is required")
			}
			if password == "" {
				p, err := readLine(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = p
			}
			return withSession(cmd, flags, func(ctx context.Context, rt *runtime) error {
				user, err := rt.sessions.Login(ctx, username, password)
				if err != nil {
					if errors.Is(err, errors.ErrSessionSuperseded) {
						return err
					}
					return fmt.Errorf("invalid username or password")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", user.Username, user.Role)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (read from stdin when empty)")
	return cmd
}

func logoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, flags, func(ctx context.Context, rt *runtime) error {
				rt.sessions.Logout()
				fmt.Fprintln(cmd.OutOrStdout(), "logged out")
				return nil
			})
		},
	}
}

func whoamiCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, flags, func(ctx context.Context, rt *runtime) error {
				s := rt.sessions.Session()
				out := cmd.OutOrStdout()
				if s.User == nil {
					fmt.Fprintln(out, "not logged in")
					return nil
				}
				fmt.Fprintf(out, "user:    %s\n", s.User.DisplayName())
				fmt.Fprintf(out, "role:    %s\n", s.User.Role)
				if s.User.Email != "" {
					fmt.Fprintf(out, "email:   %s\n", s.User.Email)
				}
				fmt.Fprintf(out, "state:   %s\n", s.StateName)
				if !s.ExpiresAt.IsZero() {
					fmt.Fprintf(out, "expires: %s\n", s.ExpiresAt.Format(time.RFC3339))
				}
				if s.Bypass {
					fmt.Fprintln(out, "bypass:  true")
				}
				return nil
			})
		},
	}
}

func menuCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "List ERP sections and whether the current user may open them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, flags, func(ctx context.Context, rt *runtime) error {
				out := cmd.OutOrStdout()
				for _, e := range navigation.Build(rt.sessions.User(), rt.evaluator, pages.All) {
					mark := " "
					if e.Enabled {
						mark = "x"
					}
					fmt.Fprintf(out, "[%s] %-22s %s\n", mark, e.Title, e.Path)
				}
				return nil
			})
		},
	}
}

func registerCmd(flags *globalFlags) *cobra.Command {
	var req session.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Request a new ERP account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, flags, func(ctx context.Context, rt *runtime) error {
				if err := rt.sessions.Register(ctx, req); err != nil {
					return fmt.Errorf("registration failed: %s", errors.GetMessage(err))
				}
				fmt.Fprintln(cmd.OutOrStdout(), "registration submitted; the account is usable once an administrator approves it")
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Username, "username", "", "Username")
	f.StringVar(&req.Email, "email", "", "Email")
	f.StringVar(&req.Password, "password", "", "Password")
	f.StringVar(&req.Password2, "password2", "", "Password confirmation")
	f.StringVar(&req.FirstName, "first-name", "", "First name")
	f.StringVar(&req.LastName, "last-name", "", "Last name")
	f.StringVar(&req.Role, "role", "", "Requested role")
	f.StringVar(&req.Phone, "phone", "", "Phone number")
	return cmd
}

func refreshCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, flags, func(ctx context.Context, rt *runtime) error {
				if !rt.sessions.Authenticated() {
					return fmt.Errorf("not logged in")
				}
				if err := rt.sessions.Refresh(ctx); err != nil {
					return fmt.Errorf("refresh failed, session ended: %s", errors.GetMessage(err))
				}
				s := rt.sessions.Session()
				fmt.Fprintf(cmd.OutOrStdout(), "access token refreshed, expires %s\n", s.ExpiresAt.Format(time.RFC3339))
				return nil
			})
		},
	}
}

func bypassHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bypass-hash [password]",
		Short: "Print the bcrypt hash for auth.devBypass.passwordHash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				p, err := readLine(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = p
			}
			if password == "" {
				return fmt.Errorf("password must not be empty")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
