package worker

import "github.com/reelhq/reel/pkg/logger"

var workerLogger = logger.Get("Worker")

type WorkerWakeupChan chan int
type WorkerStatus int

// Task is the unit of work executed by a worker. The implementation
// should claim and process at most one item, returning true if an item
// was processed (the worker will immediately poll again), or false if
// no work was available (the worker will go back to sleep).
type Task func(Worker) (bool, error)

const (
	Sleeping WorkerStatus = iota
	Working
	Finished
)

type Worker interface {
	Start()
	Status() WorkerStatus
	WakeupChan() WorkerWakeupChan
	Label() string
	Sleep() bool
	Close()
}

type taskWorker struct {
	label         string
	task          Task
	wakeupChan    WorkerWakeupChan
	currentStatus WorkerStatus
}

func NewWorker(label string, task Task) *taskWorker {
	return &taskWorker{
		label,
		task,
		make(WorkerWakeupChan),
		Sleeping,
	}
}

// Start runs the worker loop: drain all available work, then sleep until
// woken up via the wakeup channel. The loop exits when the wakeup
// channel is closed.
func (worker *taskWorker) Start() {
	workerLogger.Emit(logger.NEW, "Starting worker with label %v\n", worker.label)
	worker.currentStatus = Working

	for {
		for {
			ok, err := worker.task(worker)
			if err != nil {
				workerLogger.Emit(logger.ERROR, "Worker with label %v has reported an error(%T): %v\n", worker.label, err, err.Error())
				break
			}
			if !ok {
				break
			}
		}

		if !worker.Sleep() {
			break
		}
	}

	worker.currentStatus = Finished
	workerLogger.Emit(logger.STOP, "Worker with label %v has stopped\n", worker.label)
}

// Status returns the current status of this worker
func (worker *taskWorker) Status() WorkerStatus {
	return worker.currentStatus
}

func (worker *taskWorker) WakeupChan() WorkerWakeupChan {
	return worker.wakeupChan
}

// Close closes the Worker by closing the WakeChan.
// Note that this does not interupt currently running
// goroutines.
func (worker *taskWorker) Close() {
	close(worker.wakeupChan)
}

// Label returns the label for this worker
func (worker *taskWorker) Label() string {
	return worker.label
}

// Sleep puts a worker to sleep until it's wakeupChan is
// signalled from another goroutine. Returns a boolean that
// is 'false' if the wakeup channel was closed - indicating
// the worker should quit.
func (worker *taskWorker) Sleep() (isAlive bool) {
	worker.currentStatus = Sleeping

	if _, isAlive = <-worker.wakeupChan; isAlive {
		worker.currentStatus = Working
	} else {
		workerLogger.Emit(logger.STOP, "Wakeup channel for worker '%v' has been closed - worker is exiting\n", worker.label)
		worker.currentStatus = Finished
	}

	return isAlive
}
