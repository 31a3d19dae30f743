// Package bootstrap is the composition root of the host. It turns a
// config.Config into a running application: module source, loader,
// scheduler, lifecycle events, status server and periodic stats report.
//
//	cfg, err := config.Load("tickhost.toml")
//	if err != nil {
//	    return err
//	}
//	return bootstrap.Run(ctx, cfg, bootstrap.WithLogger(logger))
//
// Run returns when ctx is done or the scheduler ends on its own; module load
// and startup failures are returned unchanged so callers can classify them
// with errors.IsModuleLoad and errors.IsStartup.
package bootstrap
