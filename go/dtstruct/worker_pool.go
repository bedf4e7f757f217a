/*
	Copyright 2021 SANGFOR TECHNOLOGIES

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

		http://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/
package dtstruct

import (
	"gitee.com/opengauss/mysql-sidecar/go/common/constant"
	"gitee.com/opengauss/mysql-sidecar/go/core/log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// WorkerFunc is what a worker does, it should return when workerExit is closed
type WorkerFunc func(workerExit chan struct{}) error

// WorkerPool used to manage all long running task, such as stream server and http server
type WorkerPool struct {
	wpWtGrp  *sync.WaitGroup
	exitOnce *sync.Once
	workerMu struct {
		sync.RWMutex
		workers  map[string]*Worker // key: worker name, value: worker
		running  map[string]int     // key: worker name, value: number of worker running
		stopping bool               // if worker pool is stopped
		errs     []error            // errors returned by workers
	}
	poolExit chan os.Signal // used to catch system exit signal
}

// NewWorkerPool create new worker pool
func NewWorkerPool() *WorkerPool {
	workerPool := &WorkerPool{wpWtGrp: &sync.WaitGroup{}, exitOnce: &sync.Once{}, poolExit: make(chan os.Signal, 1)}
	workerPool.workerMu.workers = make(map[string]*Worker, constant.WorkerDefaultQuantity)
	workerPool.workerMu.running = make(map[string]int, constant.WorkerDefaultQuantity)
	return workerPool
}

// postProcess record worker result and delete key from running map if there's no running worker for that key,
// a failed worker stops the whole pool
func (w *WorkerPool) postProcess(name string, err error) {
	w.workerMu.Lock()
	if count, ok := w.workerMu.running[name]; ok {
		if count <= 1 {
			delete(w.workerMu.running, name)
		} else {
			w.workerMu.running[name] = count - 1
		}
	} else {
		log.Error("worker with name:%s is not running", name)
	}
	stopping := w.workerMu.stopping
	if err != nil {
		w.workerMu.errs = append(w.workerMu.errs, err)
	}
	w.workerMu.Unlock()

	if err != nil && !stopping {
		log.Error("worker:%s failed, stop worker pool, error:%s", name, err)
		w.Exit(os.Interrupt)
	}
}

// showWorkerRun show all running worker and count of running instance for it, output after sorted by name
func (w *WorkerPool) showWorkerRun() string {
	w.workerMu.RLock()
	defer w.workerMu.RUnlock()
	var running []string
	for name, count := range w.workerMu.running {
		running = append(running, strings.Join([]string{name, strconv.Itoa(count)}, ":"))
	}
	sort.Strings(running)
	return strings.Join(running, ",")
}

// NewWorker create new worker and put it to worker pool
func (w *WorkerPool) NewWorker(name string, f WorkerFunc) (*Worker, error) {
	w.workerMu.Lock()
	defer w.workerMu.Unlock()

	// failed if worker pool is stopped now
	if w.workerMu.stopping {
		return nil, log.Errorf("worker pool is stopping")
	}

	// failed if worker is already exist with the same name
	if _, ok := w.workerMu.workers[name]; ok {
		return nil, log.Errorf("already has worker with same name: %s", name)
	}

	// create new worker and put it to worker pool
	w.workerMu.workers[name] = &Worker{exitOnce: &sync.Once{}, wp: w, Name: name, workerExit: make(chan struct{}), f: f}
	return w.workerMu.workers[name], nil
}

// GetWorker get named worker from worker pool
func (w *WorkerPool) GetWorker(name string) *Worker {
	w.workerMu.RLock()
	defer w.workerMu.RUnlock()
	if worker, ok := w.workerMu.workers[name]; ok {
		return worker
	}
	log.Warning("no worker with name:%s", name)
	return nil
}

// AsyncRun create new worker and run it async
func (w *WorkerPool) AsyncRun(name string, f WorkerFunc) error {
	worker, err := w.NewWorker(name, f)
	if err != nil {
		return err
	}
	return worker.AsyncRun()
}

// Exit quit worker pool by signal, it will not block if exit is already triggered
func (w *WorkerPool) Exit(signal os.Signal) {
	select {
	case w.poolExit <- signal:
	default:
	}
}

// GetExitChannel return worker pool's exit channel
func (w *WorkerPool) GetExitChannel() chan os.Signal {
	return w.poolExit
}

// WaitStop stop all worker and quit worker pool gracefully by once, return the first error reported by worker
func (w *WorkerPool) WaitStop() (err error) {
	w.exitOnce.Do(
		func() {
			// wait until system exit
			log.Infof("worker pool will stop by signal: %v", <-w.poolExit)

			// set worker pool stop state is true and trigger all worker to exit
			w.workerMu.Lock()
			w.workerMu.stopping = true
			for name, worker := range w.workerMu.workers {
				log.Infof("stop worker:%s, running:%d", name, w.workerMu.running[name])
				worker.Exit()
			}
			w.workerMu.Unlock()

			// wait until all worker to exit
			w.wpWtGrp.Wait()
			log.Infof("worker pool has been stopped, running: [%s]", w.showWorkerRun())
		},
	)
	w.workerMu.RLock()
	defer w.workerMu.RUnlock()
	if len(w.workerMu.errs) > 0 {
		return w.workerMu.errs[0]
	}
	return nil
}

// Worker used to exec function async
type Worker struct {
	exitOnce   *sync.Once    // control exit
	wp         *WorkerPool   // worker pool which hold this worker
	Name       string        // worker name, better to define in constant with "WorkerName" prefix
	workerExit chan struct{} // channel used to trigger quit by worker pool
	f          WorkerFunc    // what to do by this worker
}

// AsyncRun run worker async
func (w *Worker) AsyncRun() error {
	log.Infof("run worker:%s", w.Name)
	w.wp.workerMu.Lock()
	defer w.wp.workerMu.Unlock()

	// failed if worker pool is stopped
	if w.wp.workerMu.stopping {
		return log.Errorf("worker pool is stopping")
	}

	// increase instance count for this worker and wait group counter for worker pool
	w.wp.workerMu.running[w.Name]++
	w.wp.wpWtGrp.Add(1)

	// do work async
	go func() {
		defer w.wp.wpWtGrp.Done()
		err := w.f(w.workerExit)
		log.Infof("worker:%s done", w.Name)
		w.wp.postProcess(w.Name, err)
	}()
	return nil
}

// Exit trigger worker to exit
func (w *Worker) Exit() {
	w.exitOnce.Do(func() {
		close(w.workerExit)
	})
}
