// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package admin

// Init is the entrypoint into the admin package. It turns on runtime
// sampling for every served profile that needs it.
//
// Sampling can be tuned with PPROF_BLOCK_RATE and PPROF_MUTEX_FRACTION,
// both default to 1 (sample everything).
func Init() error {
	for _, p := range profiles {
		if p.sample == nil || !p.served() {
			continue
		}
		if err := p.sample(); err != nil {
			return err
		}
	}
	return nil
}
