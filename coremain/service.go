package coremain

import (
	"fmt"
	"os"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/pmkol/gaicached/mlog"
)

var svcCfg = &service.Config{
	Name:        "gaicached",
	DisplayName: "gaicached",
	Description: "A caching layer for getaddrinfo style name resolution.",
}

var svc service.Service

type serverService struct {
	f *serverFlags
}

func (ss *serverService) Start(s service.Service) error {
	go func() {
		if err := StartServer(ss.f); err != nil {
			mlog.S().Error(err)
			os.Exit(1)
		}
		os.Exit(0)
	}()
	return nil
}

func (ss *serverService) Stop(s service.Service) error {
	return nil
}

func initService(cmd *cobra.Command, args []string) error {
	s, err := service.New(
		&serverService{f: &serverFlags{asService: true}},
		svcCfg,
	)
	if err != nil {
		return fmt.Errorf("failed to init service, %w", err)
	}
	svc = s
	return nil
}

func newSvcInstallCmd() *cobra.Command {
	sf := new(serverFlags)
	c := &cobra.Command{
		Use:   "install [-c config_file] [-d working_dir]",
		Short: "Install gaicached as a system service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svcArgs := []string{"start", "--as-service"}
			if len(sf.c) > 0 {
				svcArgs = append(svcArgs, "-c", sf.c)
			}
			if len(sf.dir) > 0 {
				svcArgs = append(svcArgs, "-d", sf.dir)
			}
			svcCfg.Arguments = svcArgs
			s, err := service.New(&serverService{}, svcCfg)
			if err != nil {
				return fmt.Errorf("failed to init service, %w", err)
			}
			return s.Install()
		},
	}
	fs := c.Flags()
	fs.StringVarP(&sf.c, "config", "c", "", "config file")
	fs.StringVarP(&sf.dir, "dir", "d", "", "working dir")
	return c
}

func newSvcUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall gaicached from system services.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return svc.Uninstall()
		},
	}
}

func newSvcStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start gaicached system service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return svc.Start()
		},
	}
}

func newSvcStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop gaicached system service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return svc.Stop()
		},
	}
}

func newSvcRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart gaicached system service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return svc.Restart()
		},
	}
}

func newSvcStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print gaicached system service status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := svc.Status()
			if err != nil {
				return fmt.Errorf("failed to get service status, %w", err)
			}
			switch status {
			case service.StatusRunning:
				fmt.Println("running")
			case service.StatusStopped:
				fmt.Println("stopped")
			default:
				fmt.Println("unknown")
			}
			return nil
		},
	}
}
