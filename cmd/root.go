package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/user"

	"github.com/byxorna/asynctable/pkg/app"
	"github.com/byxorna/asynctable/pkg/config"
	"github.com/byxorna/asynctable/pkg/journal"
	"github.com/byxorna/asynctable/pkg/pipeline"
	"github.com/byxorna/asynctable/pkg/runtime"
	"github.com/byxorna/asynctable/pkg/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	flags = struct {
		ConfigFile string
		PprofPort  int
		Debug      bool
		Inline     bool
	}{}

	root = &cobra.Command{
		Use:   "asynctable",
		Short: "asynctable browses a journal in a list that renders rows in the background",
		Args:  cobra.MaximumNArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := user.Current()
			if err != nil {
				return errors.New("could not get current user")
			}

			c, err := config.NewFromFile(flags.ConfigFile)
			if err != nil {
				return fmt.Errorf("unable to load configuration: %w", err)
			}

			logFile, err := runtime.LogFile()
			if err != nil {
				return err
			}
			f, err := tea.LogToFile(logFile, "asynctable")
			if err != nil {
				return fmt.Errorf("unable to log to %s: %w", logFile, err)
			}
			defer f.Close()

			if flags.Debug {
				table.Debug = true
				pipeline.Debug = true
				journal.Debug = true
			}
			if flags.PprofPort > 0 {
				addr := fmt.Sprintf("localhost:%d", flags.PprofPort)
				log.Printf("listening for pprof and expvar on %s", addr)
				go func() {
					if err := http.ListenAndServe(addr, nil); err != nil {
						log.Printf("pprof listener: %v", err)
					}
				}()
			}

			m, err := app.New(context.Background(), c, u.Name, !flags.Inline)
			if err != nil {
				return err
			}
			defer m.Close()

			p := tea.NewProgram(m)
			return p.Start()
		},
	}
)

func init() {
	root.PersistentFlags().StringVarP(&flags.ConfigFile, "config", "c", "~/.asynctable.yaml", "configuration file")
	root.PersistentFlags().IntVar(&flags.PprofPort, "pprof-port", 0, "serve pprof and expvar on this port, 0 disables")
	root.PersistentFlags().BoolVarP(&flags.Debug, "debug", "d", false, "log every commit, build and fetch")
	root.PersistentFlags().BoolVar(&flags.Inline, "inline", false, "render inline instead of in the alternate screen")
}

func Execute() {
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
