package middleware

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestRateLimiterConcurrentAccess verifies the rate limiter is safe under
// concurrent access. Run with -race.
func TestRateLimiterConcurrentAccess(t *testing.T) {
	limiter := NewRateLimiter(100, time.Minute, "test-concurrent")

	var wg sync.WaitGroup
	// 50 goroutines each making 20 requests, mixing shared and distinct IPs
	// to stress both the insert and increment paths
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				ip := "192.168.1.1"
				if j%3 == 0 {
					ip = fmt.Sprintf("10.0.0.%d", goroutineID%10)
				}
				allowed, count := limiter.isAllowed(ip)
				_ = allowed
				_ = count
			}
		}(i)
	}
	wg.Wait()
}

// TestRateLimiterConcurrentWithCleanup verifies no race between request
// handling and the background cleanup goroutine.
func TestRateLimiterConcurrentWithCleanup(t *testing.T) {
	// Short window so cleanup actually runs during the test
	limiter := NewRateLimiter(5, 50*time.Millisecond, "test-cleanup-race")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				limiter.isAllowed(fmt.Sprintf("10.0.0.%d", id%10))
				if j%10 == 0 {
					time.Sleep(time.Millisecond)
				}
			}
		}(i)
	}
	wg.Wait()
}
