package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type settings struct {
	API     string
	Token   string
	Timeout time.Duration
}

// app carries the state shared by every command of one invocation.
type app struct {
	v   *viper.Viper
	log *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), log: log.New()}
	a.log.SetOutput(os.Stderr)
	a.log.SetLevel(log.WarnLevel)

	root := &cobra.Command{
		Use:          "board",
		Short:        "Work with prism boards from the terminal",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig(cmd)
		},
	}
	root.AddGroup(
		&cobra.Group{ID: "boards", Title: "Boards:"},
		&cobra.Group{ID: "content", Title: "Board content:"},
	)

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default $XDG_CONFIG_HOME/prism-board/config.yaml)")
	flags.String("api", "http://localhost:8080", "board API base URL")
	flags.String("token", "", "bearer token used for every request")
	flags.Duration("timeout", 10*time.Second, "timeout of each API request")
	flags.Bool("debug", false, "log requests and reconciliation details")
	for _, name := range []string{"api", "token", "timeout", "debug"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}
	a.v.SetEnvPrefix("BOARD")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		a.newBoardsCmd(),
		a.newBoardCmd(),
		a.newColumnCmd(),
		a.newTaskCmd(),
	)
	return root
}

func (a *app) initConfig(cmd *cobra.Command) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		a.v.SetConfigFile(path)
	} else {
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			a.v.AddConfigPath(filepath.Join(dir, "prism-board"))
		}
		a.v.AddConfigPath(".")
	}
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	if a.v.GetBool("debug") {
		a.log.SetLevel(log.DebugLevel)
	}
	a.log.WithField("config", a.v.ConfigFileUsed()).Debug("configuration loaded")
	return nil
}

func (a *app) settings() (settings, error) {
	s := settings{
		API:     strings.TrimRight(a.v.GetString("api"), "/"),
		Token:   a.v.GetString("token"),
		Timeout: a.v.GetDuration("timeout"),
	}
	if s.API == "" {
		return s, errors.New("api URL is required (--api or BOARD_API)")
	}
	if s.Token == "" {
		return s, errors.New("token is required (--token or BOARD_TOKEN)")
	}
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Second
	}
	return s, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
