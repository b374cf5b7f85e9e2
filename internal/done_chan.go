package internal

import "sync"

type DoneChan chan struct{}

type DoneFunc func() DoneChan

func WrapWaitGroup(wg *sync.WaitGroup) DoneChan {
	ret := make(DoneChan)
	go func() {
		wg.Wait()
		close(ret)
	}()
	return ret
}
