//go:build windows

package main

import (
	"context"

	"golang.org/x/sys/windows/svc"
)

type rsmService struct{}

func (m *rsmService) Execute(_ []string, req <-chan svc.ChangeRequest, status chan<- svc.Status) (bool, uint32) {
	const accepted = svc.AcceptStop | svc.AcceptShutdown

	status <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runErr error
	done := make(chan struct{})
	go func() {
		runErr = runService(ctx, resolveConfigPath())
		close(done)
	}()

	status <- svc.Status{State: svc.Running, Accepts: accepted}

	for {
		select {
		case c := <-req:
			switch c.Cmd {
			case svc.Interrogate:
				status <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				status <- svc.Status{State: svc.StopPending}
				cancel()
				<-done
				if runErr != nil {
					return false, 1
				}
				return false, 0
			}
		case <-done:
			// A fatal listener error ends the run on its own; report failure
			// so service recovery can restart us.
			if runErr != nil {
				return false, 1
			}
			return false, 0
		}
	}
}
