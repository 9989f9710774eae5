// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2022, Unikraft GmbH and The KraftKit Authors.
// Licensed under the BSD-3-Clause License (the "License").
// You may not use this file except in compliance with the License.

/*
The internal `waitgroup` package is a generic which provides a synchronization
lock to read observe a list of provided entities.
*/
package waitgroup
