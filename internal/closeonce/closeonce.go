/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package closeonce

import (
	"sync"
	"sync/atomic"
)

// Closed tracks whether a resource has been closed and remembers the result of
// closing it, so that Close can be called any number of times.
type Closed struct {
	once sync.Once
	done atomic.Bool
	err  error
}

// Closed returns true once Close has completed
func (o *Closed) Closed() bool {
	return o.done.Load()
}

// Close invokes f the first time it is called and returns its error on every
// call
func (o *Closed) Close(f func() error) error {
	o.once.Do(func() {
		o.err = f()
		o.done.Store(true)
	})
	return o.err
}
