// Copyright 2014 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux && amd64

package platform

import (
	"encoding/binary"
	"log"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

//
// Tracee --
//
// The driver runs as a child process under ptrace. When one
// of its threads touches a protected region the kernel stops
// that thread and reports a SIGSEGV to us; the thread stays
// stopped while we decode, talk to the model and fix up its
// registers. Nothing runs inside the driver's signal context.
//
// All ptrace requests must come from the thread that started
// the child, so Run() owns a locked OS thread for its lifetime.
// Other goroutines reach the tracee through requests, which are
// picked up the next time a tracee thread stops (see kick()).
//

type spaceRequest struct {
	reserve bool
	base    Paddr
	size    uint64
	result  chan error
}

type Tracee struct {
	cmd *exec.Cmd

	// Protects the fields below.
	mutex sync.Mutex

	pid     int
	running bool
	exited  bool

	// Regions requested before the driver started.
	pending []*spaceRequest

	// Regions requested while it runs.
	requests chan *spaceRequest

	// Closed when the driver exits.
	done chan struct{}

	// Called once the driver has exec'ed.
	Started func(pid int)

	// Debugging?
	Debug bool
}

func NewTracee(cmd *exec.Cmd) *Tracee {
	return &Tracee{
		cmd:      cmd,
		requests: make(chan *spaceRequest, 16),
		done:     make(chan struct{}),
	}
}

func (tracee *Tracee) Pid() int {
	tracee.mutex.Lock()
	defer tracee.mutex.Unlock()
	return tracee.pid
}

func (tracee *Tracee) Done() <-chan struct{} {
	return tracee.done
}

func (tracee *Tracee) Reserve(base Paddr, size uint64) error {
	if !base.PageAligned() || size%PageSize != 0 {
		return RegionUnaligned
	}
	return tracee.request(true, base, size)
}

func (tracee *Tracee) Release(base Paddr, size uint64) error {
	return tracee.request(false, base, size)
}

func (tracee *Tracee) request(reserve bool, base Paddr, size uint64) error {
	req := &spaceRequest{
		reserve: reserve,
		base:    base,
		size:    size,
		result:  make(chan error, 1),
	}

	tracee.mutex.Lock()
	if tracee.exited {
		tracee.mutex.Unlock()
		// Nothing left to protect.
		return gone(reserve)
	}
	if !tracee.running {
		// Applied once the driver has exec'ed.
		tracee.pending = append(tracee.pending, req)
		tracee.mutex.Unlock()
		return nil
	}
	pid := tracee.pid
	tracee.mutex.Unlock()

	select {
	case tracee.requests <- req:
	case <-tracee.done:
		return gone(reserve)
	}
	tracee.kick(pid)

	select {
	case err := <-req.result:
		return err
	case <-tracee.done:
		return gone(reserve)
	}
}

// gone is the result of a request against an exited driver.
func gone(reserve bool) error {
	if reserve {
		return TraceeExited
	}
	return nil
}

// kick stops some thread of the driver so that the
// tracer loop gets a chance to service requests.
// The SIGSTOP itself is swallowed.
func (tracee *Tracee) kick(pid int) {
	if pid > 0 {
		unix.Kill(pid, unix.SIGSTOP)
	}
}

// Run starts the driver and services it until it exits.
// The returned status is the exit code, or 128+signal.
func (tracee *Tracee) Run(handler FaultHandler) (int, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	tracee.mutex.Lock()
	if tracee.running || tracee.exited {
		tracee.mutex.Unlock()
		return -1, TraceeRunning
	}
	tracee.mutex.Unlock()

	if tracee.cmd.SysProcAttr == nil {
		tracee.cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	tracee.cmd.SysProcAttr.Ptrace = true
	tracee.cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL

	err := tracee.cmd.Start()
	if err != nil {
		tracee.finish()
		return -1, err
	}
	pid := tracee.cmd.Process.Pid
	defer tracee.cmd.Process.Release()

	// Wait for the exec stop.
	var status unix.WaitStatus
	_, err = unix.Wait4(pid, &status, unix.WALL, nil)
	if err != nil || !status.Stopped() {
		tracee.finish()
		return -1, TraceeNotStopped
	}

	err = unix.PtraceSetOptions(pid, unix.PTRACE_O_TRACECLONE|unix.PTRACE_O_EXITKILL)
	if err != nil {
		unix.Kill(pid, unix.SIGKILL)
		tracee.finish()
		return -1, err
	}

	tracee.mutex.Lock()
	tracee.pid = pid
	tracee.running = true
	pending := tracee.pending
	tracee.pending = nil
	tracee.mutex.Unlock()

	if tracee.Started != nil {
		tracee.Started(pid)
	}

	// Protect everything registered up front.
	for _, req := range pending {
		err = tracee.apply(pid, req)
		if err != nil {
			log.Printf("tracee: %d: protecting %x+%x: %s", pid, req.base, req.size, err.Error())
			unix.Kill(pid, unix.SIGKILL)
			tracee.reap(pid)
			tracee.finish()
			return -1, err
		}
	}

	if tracee.Debug {
		log.Printf("tracee: %d: running", pid)
	}
	unix.PtraceCont(pid, 0)

	return tracee.loop(pid, handler)
}

func (tracee *Tracee) finish() {
	tracee.mutex.Lock()
	defer tracee.mutex.Unlock()
	if !tracee.exited {
		tracee.exited = true
		close(tracee.done)
	}
}

// reap waits out a killed driver.
func (tracee *Tracee) reap(pid int) {
	var status unix.WaitStatus
	for {
		wpid, err := unix.Wait4(-1, &status, unix.WALL, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil || (wpid == pid && (status.Exited() || status.Signaled())) {
			return
		}
	}
}

func (tracee *Tracee) loop(pid int, handler FaultHandler) (int, error) {
	defer tracee.finish()

	for {
		var status unix.WaitStatus
		tid, err := unix.Wait4(-1, &status, unix.WALL, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, err
		}

		switch {
		case status.Exited():
			if tid == pid {
				return status.ExitStatus(), nil
			}

		case status.Signaled():
			if tid == pid {
				return 128 + int(status.Signal()), nil
			}

		case status.Stopped():
			sig := status.StopSignal()
			switch {
			case sig == unix.SIGTRAP && status.TrapCause() > 0:
				// Clone (or other) event.
				unix.PtraceCont(tid, 0)

			case sig == unix.SIGSTOP:
				// New thread, or one of our kicks.
				tracee.drain(tid)
				unix.PtraceCont(tid, 0)

			case sig == unix.SIGSEGV:
				tracee.fault(tid, handler)

			default:
				unix.PtraceCont(tid, int(sig))
			}
		}
	}
}

func (tracee *Tracee) drain(tid int) {
	for {
		select {
		case req := <-tracee.requests:
			req.result <- tracee.apply(tid, req)
		default:
			return
		}
	}
}

func (tracee *Tracee) apply(tid int, req *spaceRequest) error {
	if !req.reserve {
		_, err := tracee.inject(tid, unix.SYS_MUNMAP, uint64(req.base), req.size)
		return err
	}

	addr, err := tracee.inject(
		tid,
		unix.SYS_MMAP,
		uint64(req.base),
		req.size,
		unix.PROT_NONE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_FIXED_NOREPLACE|unix.MAP_NORESERVE,
		^uint64(0),
		0)
	if err == unix.EEXIST {
		return RegionBusy
	}
	if err != nil {
		return err
	}
	if Paddr(addr) != req.base {
		tracee.inject(tid, unix.SYS_MUNMAP, addr, req.size)
		return RegionBusy
	}
	return nil
}

// inject runs one system call in a stopped thread.
// The thread's registers and code are restored afterwards.
func (tracee *Tracee) inject(tid int, nr uintptr, args ...uint64) (uint64, error) {
	var saved unix.PtraceRegs
	err := unix.PtraceGetRegs(tid, &saved)
	if err != nil {
		return 0, err
	}

	// Place a syscall instruction at the current ip.
	code := make([]byte, 8)
	_, err = unix.PtracePeekText(tid, uintptr(saved.Rip), code)
	if err != nil {
		return 0, err
	}
	patched := make([]byte, 8)
	copy(patched, code)
	patched[0] = 0x0f
	patched[1] = 0x05
	_, err = unix.PtracePokeText(tid, uintptr(saved.Rip), patched)
	if err != nil {
		return 0, err
	}
	defer unix.PtracePokeText(tid, uintptr(saved.Rip), code)
	defer unix.PtraceSetRegs(tid, &saved)

	regs := saved
	regs.Rax = uint64(nr)
	// No syscall restart for the injected call.
	regs.Orig_rax = ^uint64(0)
	argregs := []*uint64{&regs.Rdi, &regs.Rsi, &regs.Rdx, &regs.R10, &regs.R8, &regs.R9}
	for i, arg := range args {
		*argregs[i] = arg
	}
	err = unix.PtraceSetRegs(tid, &regs)
	if err != nil {
		return 0, err
	}

	err = unix.PtraceSingleStep(tid)
	if err != nil {
		return 0, err
	}
	var status unix.WaitStatus
	for {
		_, err = unix.Wait4(tid, &status, unix.WALL, nil)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return 0, err
	}
	if !status.Stopped() || status.StopSignal() != unix.SIGTRAP {
		return 0, InjectFailed
	}

	var result unix.PtraceRegs
	err = unix.PtraceGetRegs(tid, &result)
	if err != nil {
		return 0, err
	}
	ret := int64(result.Rax)
	if ret < 0 && ret > -4096 {
		return 0, unix.Errno(-ret)
	}
	return result.Rax, nil
}

// siginfo returns the si_code and si_addr of the pending signal.
func siginfo(tid int) (int32, uint64, error) {
	var info [128]byte
	_, _, e := unix.Syscall6(
		unix.SYS_PTRACE,
		unix.PTRACE_GETSIGINFO,
		uintptr(tid),
		0,
		uintptr(unsafe.Pointer(&info[0])),
		0,
		0)
	if e != 0 {
		return 0, 0, e
	}
	code := int32(binary.LittleEndian.Uint32(info[8:12]))
	addr := binary.LittleEndian.Uint64(info[16:24])
	return code, addr, nil
}

func (tracee *Tracee) fault(tid int, handler FaultHandler) {
	var regs unix.PtraceRegs
	err := unix.PtraceGetRegs(tid, &regs)
	if err != nil {
		unix.PtraceCont(tid, int(unix.SIGSEGV))
		return
	}

	code, addr, err := siginfo(tid)
	if err != nil {
		unix.PtraceCont(tid, int(unix.SIGSEGV))
		return
	}

	instruction := make([]byte, MaxInstructionLength)
	n, _ := unix.PtracePeekText(tid, uintptr(regs.Rip), instruction)

	trap := &Trap{
		Tid:         tid,
		Addr:        Paddr(addr),
		Code:        code,
		Instruction: instruction[:n],
	}
	loadContext(&trap.Context, &regs)

	err = handler.HandleFault(trap)
	if err != nil {
		// Not ours, or failed: the driver gets the fault.
		unix.PtraceCont(tid, int(unix.SIGSEGV))
		return
	}

	storeContext(&regs, &trap.Context)
	err = unix.PtraceSetRegs(tid, &regs)
	if err != nil {
		log.Printf("tracee: %d: restoring registers: %s", tid, err.Error())
		unix.PtraceCont(tid, int(unix.SIGSEGV))
		return
	}
	unix.PtraceCont(tid, 0)
}

func loadContext(ctx *Context, regs *unix.PtraceRegs) {
	ctx.Regs[RAX] = regs.Rax
	ctx.Regs[RBX] = regs.Rbx
	ctx.Regs[RCX] = regs.Rcx
	ctx.Regs[RDX] = regs.Rdx
	ctx.Regs[RSI] = regs.Rsi
	ctx.Regs[RDI] = regs.Rdi
	ctx.Regs[RSP] = regs.Rsp
	ctx.Regs[RBP] = regs.Rbp
	ctx.Regs[R8] = regs.R8
	ctx.Regs[R9] = regs.R9
	ctx.Regs[R10] = regs.R10
	ctx.Regs[R11] = regs.R11
	ctx.Regs[R12] = regs.R12
	ctx.Regs[R13] = regs.R13
	ctx.Regs[R14] = regs.R14
	ctx.Regs[R15] = regs.R15
	ctx.Regs[RIP] = regs.Rip
	ctx.Regs[RFLAGS] = regs.Eflags
}

func storeContext(regs *unix.PtraceRegs, ctx *Context) {
	regs.Rax = ctx.Regs[RAX]
	regs.Rbx = ctx.Regs[RBX]
	regs.Rcx = ctx.Regs[RCX]
	regs.Rdx = ctx.Regs[RDX]
	regs.Rsi = ctx.Regs[RSI]
	regs.Rdi = ctx.Regs[RDI]
	regs.Rsp = ctx.Regs[RSP]
	regs.Rbp = ctx.Regs[RBP]
	regs.R8 = ctx.Regs[R8]
	regs.R9 = ctx.Regs[R9]
	regs.R10 = ctx.Regs[R10]
	regs.R11 = ctx.Regs[R11]
	regs.R12 = ctx.Regs[R12]
	regs.R13 = ctx.Regs[R13]
	regs.R14 = ctx.Regs[R14]
	regs.R15 = ctx.Regs[R15]
	regs.Rip = ctx.Regs[RIP]
	regs.Eflags = ctx.Regs[RFLAGS]
}
